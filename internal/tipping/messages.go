package tipping

import (
	"fmt"
	"strings"
)

// Reply texts. Each formatter takes the currency symbol configured for the
// engine so the texts follow the deployment.

func textNotANumber(trigger string) string {
	return fmt.Sprintf("Looks like the value you entered to tip was not a number. You can try to tip again using the format %s 1234 @username", trigger)
}

func textTooPrecise(decimals int32) string {
	return fmt.Sprintf("Tip amounts can have at most %d decimal places. Please update your tip amount and try again.", decimals)
}

func textBelowMinimum(min, symbol string) string {
	return fmt.Sprintf("The minimum tip amount is %s %s. Please update your tip amount and try again.", min, symbol)
}

func textRecipientNotFound(mention string) string {
	return fmt.Sprintf("%s not found in our records. In order to tip them, they need to be a member of the channel. If they are in the channel, please have them send a message in the chat so I can add them. They also need to have a username set up.", mention)
}

const textReplyTargetUnknown = "The recipient must have posted in the chat before being tipped. Please have them send a message in the chat so I can add them."

const textSenderUnregistered = "You do not have an account with the bot. Please send a DM to me with .register to set up an account."

func textInsufficientFunds(total, symbol string) string {
	return fmt.Sprintf("You do not have enough %s to cover this %s %s tip. Please check your balance by sending a DM to me with .balance and retry.", symbol, total, symbol)
}

const textLedgerUnavailable = "Something went wrong talking to the node. Please try again later."

const textAccountCreation = "Something went wrong creating your account. Please try again later or contact one of the bot admins."

func textTipFailed(receiver, symbol string) string {
	return fmt.Sprintf("Your %s tip to %s could not be sent. Tips listed before it were delivered; please try again later for the rest.", symbol, receiver)
}

func textTipsSent(amount, symbol string, n int) string {
	if n >= 2 {
		return fmt.Sprintf("You have successfully sent your %s %s tips.", amount, symbol)
	}
	return fmt.Sprintf("You have successfully sent your %s %s tip.", amount, symbol)
}

func textHelp(botName, symbol string, triggers []string) string {
	trigger := ".tip"
	if len(triggers) > 0 {
		trigger = triggers[0]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Thank you for using @%s! Below is a list of commands, and a description of how you can interact with me:\n\n", botName)
	b.WriteString(" .help: Responds with this list of commands and their functions.\n\n")
	fmt.Fprintf(&b, " .register: Creates a fresh %s account address specifically for you. This is used to store your tips. Make sure to withdraw to a private wallet, as the tip bot is not meant to be a long term storage device.\n\n", symbol)
	b.WriteString(" .balance: Shows how many funds are in your account.\n\n")
	fmt.Fprintf(&b, " %s: Tips are sent to @username in group chats. Mention %s <amount> <@username>. EXAMPLE: %s 1 @user will send a 1 %s tip to @user. Replying to a message with %s <amount> tips its author.\n\n", trigger, trigger, trigger, symbol, trigger)
	fmt.Fprintf(&b, " .account: Returns your deposit address. You can use this to deposit more %s to tip from your personal wallet.\n\n", symbol)
	fmt.Fprintf(&b, " .withdraw: Proper usage is .withdraw <address>. This sends the full balance of your tip account to another external account. Optional: include an amount with .withdraw <amount> <address>.\n")
	return b.String()
}

func textTipRedirect(botName, trigger string) string {
	return fmt.Sprintf("Tips are processed through public messages. Please send this message in a group chat in the format @%s %s 1 @user1.", botName, trigger)
}

const textNotRecognized = "The command or syntax you sent is not recognized. Please send .help for a list of commands and what they do."

func textBalance(balance, symbol string) string {
	return fmt.Sprintf("Your balance is %s %s.", balance, symbol)
}

const (
	textRegistered        = "You have successfully registered for an account. Your deposit address is:"
	textAlreadyRegistered = "You already have registered your account. Your deposit address is:"
	textAccountCreated    = "You didn't have an account set up, so I set one up for you. Your deposit address is:"
	textAccountAddress    = "Your deposit address is:"
)

const textWithdrawUsage = "I didn't understand your withdraw request. Please resend with .withdraw <optional:amount> <address>. Example: .withdraw 1 ban_1meme1... would withdraw 1 to that address, and .withdraw ban_1meme1... would withdraw your entire balance."

const textWithdrawNoAccount = "You do not have an account. Respond with .register to set one up."

const textInvalidAddress = "The account address you provided is invalid. Please double check and resend your request."

const textWithdrawNotANumber = "You did not send a number to withdraw. Please resend with the format .withdraw <address> or .withdraw <amount> <address>"

func textZeroBalance(address string) string {
	return fmt.Sprintf("You have 0 balance in your account. Please deposit to your address %s to send more tips!", address)
}

func textWithdrawTooMuch(symbol string) string {
	return fmt.Sprintf("You do not have that much %s in your account. To withdraw your full amount, send .withdraw <address>", symbol)
}

func textWithdrawn(amount, symbol string) string {
	return fmt.Sprintf("You have successfully withdrawn %s %s!", amount, symbol)
}

const textWithdrawFailed = "Your withdraw could not be processed. Please try again later."
