package advisory

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"lifesim/internal/money"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Mentor struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Persona     Persona   `json:"role"`
	Personality string    `json:"personality"`
	Greeting    string    `json:"greeting_template"`
}

// Template is a mentor's message for one trigger type. Body holds {name}
// placeholders filled from the username and the trigger's data.
type Template struct {
	ID           uuid.UUID `json:"id"`
	MentorID     uuid.UUID `json:"mentor_id"`
	TriggerType  string    `json:"trigger_type"`
	Body         string    `json:"message_template"`
	CTAText      string    `json:"cta_text,omitempty"`
	CTAAction    string    `json:"cta_action,omitempty"`
	Priority     int       `json:"priority"`
	PointsReward int       `json:"points_reward"`
}

type Message struct {
	Mentor       Mentor         `json:"mentor"`
	TemplateID   uuid.UUID      `json:"message_id"`
	TriggerType  string         `json:"trigger_type"`
	Priority     int            `json:"priority"`
	Body         string         `json:"message"`
	CTAText      string         `json:"cta_text,omitempty"`
	CTAAction    string         `json:"cta_action,omitempty"`
	CTAModified  bool           `json:"cta_modified,omitempty"`
	CTAReason    string         `json:"cta_reason,omitempty"`
	PointsReward int            `json:"points_reward"`
	Data         map[string]any `json:"trigger_data"`
	Immediate    bool           `json:"immediate,omitempty"`
}

// Render fills {name} placeholders in body. "{{" and "}}" are literal braces.
// A placeholder with no matching value is an error.
func Render(body, username string, data map[string]any) (string, error) {
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c == '{' && i+1 < len(body) && body[i+1] == '{':
			b.WriteByte('{')
			i++
		case c == '}' && i+1 < len(body) && body[i+1] == '}':
			b.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(body[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("unterminated placeholder at %d", i)
			}
			key := strings.TrimSpace(body[i+1 : i+1+end])
			if key == "username" {
				b.WriteString(username)
			} else {
				v, ok := data[key]
				if !ok {
					return "", fmt.Errorf("missing template value %q", key)
				}
				b.WriteString(formatValue(v))
			}
			i += end + 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int:
		return money.FormatWhole(decimal.NewFromInt(int64(t)))
	case int64:
		return money.FormatWhole(decimal.NewFromInt(t))
	case float64:
		return formatFloat(t)
	case decimal.Decimal:
		return formatFloat(money.Float(t))
	default:
		return fmt.Sprint(v)
	}
}

// formatFloat prints thousands separators and at most two decimals, dropping trailing zeros.
func formatFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	s := money.Format(decimal.NewFromFloat(f))
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
