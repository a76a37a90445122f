package query

import (
	"fmt"

	"github.com/Kocoro-lab/Shannon/go/curriculum/internal/session"
)

// PreviewLabel prefixes every soft refinement.
const PreviewLabel = "[PREVIEW - Not applied to course]"

// Proposal is a hard refinement waiting for the caller's confirmation.
type Proposal struct {
	TargetID            string `json:"target_id" validate:"required"`
	TargetTitle         string `json:"target_title"`
	ChangeType          string `json:"change_type"`
	Description         string `json:"description" validate:"required"`
	RequiresValidator   bool   `json:"requires_validator"`
	ConfirmationMessage string `json:"confirmation_message"`
	Preview             string `json:"preview"`
}

// Refiner builds previews and proposals. It only reads the session.
type Refiner struct{}

// SoftRefine returns a labelled preview of a non-structural change.
func (Refiner) SoftRefine(moduleID, request string, qc *session.QueryContext) (string, bool) {
	m, ok := qc.FindModule(moduleID)
	if !ok {
		return notFound(moduleID), false
	}
	return fmt.Sprintf("%s\n\nRefined %s:\nBased on request: '%s'\nOriginal description would be augmented to include more %s.",
		PreviewLabel, m.Title, request, request), true
}

// PrepareHardRefinement returns the confirmation payload for a structural edit.
func (Refiner) PrepareHardRefinement(moduleID, request string, qc *session.QueryContext) (*Proposal, bool) {
	m, ok := qc.FindModule(moduleID)
	if !ok {
		return nil, false
	}
	return &Proposal{
		TargetID:            m.ID,
		TargetTitle:         m.Title,
		ChangeType:          "structural_edit",
		Description:         request,
		RequiresValidator:   true,
		ConfirmationMessage: fmt.Sprintf("This will regenerate %s to: %s\nThis requires validation. Continue?", m.Title, request),
		Preview:             "Regeneration will be performed after confirmation.",
	}, true
}
