package dialogue

// UIHint tells the client which widget to render next to the reply.
type UIHint string

const (
	UIHintNone         UIHint = "none"
	UIHintQuickReplies UIHint = "quick_replies"
	UIHintImagePicker  UIHint = "image_picker"
	UIHintLeadForm     UIHint = "lead_form"
	UIHintRestart      UIHint = "restart"
)

// HintFor derives the widget from state alone, never from reply text.
func HintFor(state *ConversationState, scenario *Scenario) UIHint {
	switch state.Stage {
	case StageImageSelect:
		if state.SelectedOption == nil {
			return UIHintImagePicker
		}
	case StageConversion:
		return UIHintLeadForm
	case StageComplete:
		return UIHintRestart
	}
	if scenario != nil && len(scenario.Script(state.Stage).QuickReplies) > 0 {
		return UIHintQuickReplies
	}
	return UIHintNone
}
