package archive

import "github.com/wolfman30/consult-funnel/internal/dialogue"

// Label categorises a transcript by how far the visitor got. It runs locally.
// An unknown stage name counts as an early drop.
func Label(finalStage string, msgs []Message) Labels {
	labels := Labels{Category: "dropped_early"}
	if stage, err := dialogue.ParseStage(finalStage); err == nil {
		switch stage {
		case dialogue.StageComplete:
			labels.Category = "converted"
		case dialogue.StageConversion:
			labels.Category = "reached_conversion"
		}
	}
	for _, m := range msgs {
		if m.Role == string(dialogue.RoleUser) {
			labels.UserTurns++
		}
	}
	return labels
}
