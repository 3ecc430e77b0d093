package dialog

// Reply keyboard labels. Messages equal to one of them are routed to a
// fixed handler and skip moderation and the model.
const (
	ButtonAsk   = "💬 Задать вопрос"
	ButtonHelp  = "ℹ️ Помощь"
	ButtonReset = "🧹 Сбросить контекст"
)

type Intent int

const (
	IntentNone Intent = iota
	IntentAsk
	IntentHelp
	IntentReset
)

func (i Intent) String() string {
	switch i {
	case IntentAsk:
		return "ask"
	case IntentHelp:
		return "help"
	case IntentReset:
		return "reset"
	default:
		return "none"
	}
}

// ParseIntent matches text against the button labels exactly.
func ParseIntent(text string) Intent {
	switch text {
	case ButtonAsk:
		return IntentAsk
	case ButtonHelp:
		return IntentHelp
	case ButtonReset:
		return IntentReset
	default:
		return IntentNone
	}
}

// MenuLayout is the row layout of the reply keyboard shown on /start.
func MenuLayout() [][]string {
	return [][]string{
		{ButtonAsk},
		{ButtonHelp, ButtonReset},
	}
}
