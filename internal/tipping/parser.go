package tipping

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var amountPattern = regexp.MustCompile(`^(\d+(\.\d*)?|\.\d+)$`)

var (
	errNotANumber = errors.New("amount is not a number")
	errTooPrecise = errors.New("amount has more decimal places than the ledger supports")
)

// Amount is a user-supplied quantity in both display and raw form.
type Amount struct {
	Value decimal.Decimal
	// Raw is Value in the ledger's smallest unit.
	Raw *big.Int
	// Text echoes the user's input in plain decimal notation.
	Text string
}

// Times returns the amount multiplied by n, in display units.
func (a Amount) Times(n int) string {
	return a.Value.Mul(decimal.NewFromInt(int64(n))).String()
}

// TipCommand is a parsed tip trigger.
type TipCommand struct {
	Trigger string
	Amount  Amount
	// Rest holds the tokens after the amount, where recipients are scanned.
	Rest []string
}

// Normalize lower-cases text, folds newlines into spaces and splits on whitespace.
func Normalize(text string) []string {
	text = strings.ReplaceAll(text, "\n", " ")
	return strings.Fields(strings.ToLower(text))
}

// ParseAmount converts a decimal token to raw units without rounding.
func ParseAmount(token string, decimals int32) (Amount, error) {
	if !amountPattern.MatchString(token) {
		return Amount{}, errNotANumber
	}
	value, err := decimal.NewFromString(token)
	if err != nil {
		return Amount{}, errNotANumber
	}
	shifted := value.Shift(decimals)
	if !shifted.IsInteger() {
		return Amount{}, errTooPrecise
	}
	text := strings.TrimSuffix(token, ".")
	if strings.HasPrefix(text, ".") {
		text = "0" + text
	}
	return Amount{Value: value, Raw: shifted.BigInt(), Text: text}, nil
}

// FormatRaw renders a raw amount in display units.
func FormatRaw(raw *big.Int, decimals int32) string {
	if raw == nil {
		return "0"
	}
	return decimal.NewFromBigInt(raw, -decimals).String()
}

// Parser recognizes tip triggers in group messages.
type Parser struct {
	triggers map[string]struct{}
	minTip   decimal.Decimal
	decimals int32
	symbol   string
}

func NewParser(triggers []string, minTip decimal.Decimal, decimals int32, symbol string) *Parser {
	set := make(map[string]struct{}, len(triggers))
	for _, t := range triggers {
		set[strings.ToLower(t)] = struct{}{}
	}
	return &Parser{triggers: set, minTip: minTip, decimals: decimals, symbol: symbol}
}

// ParseTipCommand returns (nil, nil) when the text carries no tip trigger.
// A trigger with a missing, invalid or too small amount returns a *UserError
// wrapping ErrMalformedCommand.
func (p *Parser) ParseTipCommand(text string) (*TipCommand, error) {
	tokens := Normalize(text)

	i := 0
	for i < len(tokens) && strings.HasPrefix(tokens[i], "@") {
		i++
	}
	if i == len(tokens) {
		return nil, nil
	}
	trigger := stripBotSuffix(tokens[i])
	if _, ok := p.triggers[trigger]; !ok {
		return nil, nil
	}

	if i+1 >= len(tokens) {
		return nil, userError(ErrMalformedCommand, textNotANumber(trigger))
	}
	amount, err := ParseAmount(tokens[i+1], p.decimals)
	switch {
	case errors.Is(err, errTooPrecise):
		return nil, userError(ErrMalformedCommand, textTooPrecise(p.decimals))
	case err != nil:
		return nil, userError(ErrMalformedCommand, textNotANumber(trigger))
	}
	if amount.Value.LessThan(p.minTip) {
		return nil, userError(ErrMalformedCommand, textBelowMinimum(p.minTip.String(), p.symbol))
	}

	rest := make([]string, len(tokens)-(i+2))
	copy(rest, tokens[i+2:])
	return &TipCommand{Trigger: trigger, Amount: amount, Rest: rest}, nil
}

// stripBotSuffix turns "/tip@somebot" into "/tip".
func stripBotSuffix(token string) string {
	if idx := strings.IndexByte(token, '@'); idx > 0 {
		return token[:idx]
	}
	return token
}

func (a Amount) String() string {
	return fmt.Sprintf("%s (%s raw)", a.Text, a.Raw)
}
