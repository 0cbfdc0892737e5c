package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medichat/records-api/internal/model"
	"github.com/medichat/records-api/pkg/ai"
)

// recordFactLimit caps how many of each fact type enter the prompt.
const recordFactLimit = 8

// buildRecordContext renders the patient's current record as the prompt
// section the model grounds on: profile, latest vitals, and the most recent
// labs, medications and conditions, plus any documents attached to the turn.
func (s *Service) buildRecordContext(ctx context.Context, patientUserID uuid.UUID, documentIDs []uuid.UUID) (string, error) {
	var sb strings.Builder
	sb.WriteString("PATIENT RECORD CONTEXT\n")

	profile, err := s.records.GetProfile(ctx, patientUserID)
	if err != nil {
		return "", err
	}
	sb.WriteString("\nProfile:\n")
	if profile == nil {
		sb.WriteString("  (no profile on record)\n")
	} else {
		if profile.AgeYears != nil {
			fmt.Fprintf(&sb, "  Age: %d\n", *profile.AgeYears)
		}
		fmt.Fprintf(&sb, "  Gender: %s\n", profile.Gender)
		if profile.HistoryOfPresentIllness != nil {
			fmt.Fprintf(&sb, "  History of present illness: %s\n", *profile.HistoryOfPresentIllness)
		}
		if profile.SymptomOnset != nil {
			fmt.Fprintf(&sb, "  Symptom onset: %s\n", *profile.SymptomOnset)
		}
		if profile.SymptomDuration != nil {
			fmt.Fprintf(&sb, "  Symptom duration: %s\n", *profile.SymptomDuration)
		}
		fmt.Fprintf(&sb, "  Smoking: %s, alcohol: %s, activity: %s\n",
			profile.SmokingStatus, profile.AlcoholConsumption, profile.PhysicalActivityLevel)
	}

	vital, err := s.records.LatestVital(ctx, patientUserID)
	if err != nil {
		return "", err
	}
	sb.WriteString("\nLatest vitals:\n")
	if vital == nil {
		sb.WriteString("  (none on record)\n")
	} else {
		fmt.Fprintf(&sb, "  Measured %s:", vital.MeasuredAt.Format("2006-01-02"))
		if vital.Systolic != nil && vital.Diastolic != nil {
			fmt.Fprintf(&sb, " BP %d/%d", *vital.Systolic, *vital.Diastolic)
		}
		if vital.HeartRate != nil {
			fmt.Fprintf(&sb, " HR %d", *vital.HeartRate)
		}
		if vital.TemperatureC != nil {
			fmt.Fprintf(&sb, " Temp %.1fC", *vital.TemperatureC)
		}
		sb.WriteString("\n")
	}

	labs, err := s.records.ListLabs(ctx, patientUserID, recordFactLimit)
	if err != nil {
		return "", err
	}
	sb.WriteString("\nRecent labs:\n")
	if len(labs) == 0 {
		sb.WriteString("  (none on record)\n")
	}
	for _, lab := range labs {
		fmt.Fprintf(&sb, "  %s: %s", lab.TestName, lab.ValueText)
		if lab.Unit != nil {
			fmt.Fprintf(&sb, " %s", *lab.Unit)
		}
		if lab.ReferenceRange != nil {
			fmt.Fprintf(&sb, " (ref %s)", *lab.ReferenceRange)
		}
		if lab.Flag != nil {
			fmt.Fprintf(&sb, " [%s]", *lab.Flag)
		}
		fmt.Fprintf(&sb, ", collected %s\n", lab.CollectedAt.Format("2006-01-02"))
	}

	medications, err := s.records.ListMedications(ctx, patientUserID, recordFactLimit)
	if err != nil {
		return "", err
	}
	sb.WriteString("\nMedications:\n")
	if len(medications) == 0 {
		sb.WriteString("  (none on record)\n")
	}
	for _, med := range medications {
		fmt.Fprintf(&sb, "  %s", med.MedicationName)
		if med.Dose != nil {
			fmt.Fprintf(&sb, " %s", *med.Dose)
		}
		if med.Frequency != nil {
			fmt.Fprintf(&sb, " %s", *med.Frequency)
		}
		if !med.Active {
			sb.WriteString(" (inactive)")
		}
		sb.WriteString("\n")
	}

	conditions, err := s.records.ListConditions(ctx, patientUserID, recordFactLimit)
	if err != nil {
		return "", err
	}
	sb.WriteString("\nConditions:\n")
	if len(conditions) == 0 {
		sb.WriteString("  (none on record)\n")
	}
	for _, cond := range conditions {
		fmt.Fprintf(&sb, "  %s", cond.ConditionName)
		if cond.Status != nil {
			fmt.Fprintf(&sb, " (%s)", *cond.Status)
		}
		sb.WriteString("\n")
	}

	if len(documentIDs) > 0 {
		sb.WriteString("\nDocuments attached to this turn (use getDocumentInsights for their contents):\n")
		for _, docID := range documentIDs {
			doc, err := s.docs.Get(ctx, docID)
			if err != nil {
				return "", err
			}
			if doc == nil || doc.PatientUserID != patientUserID {
				continue
			}
			fmt.Fprintf(&sb, "  %s: %s (%s, uploaded %s)\n",
				doc.ID, doc.OriginalFileName, doc.Status, doc.CreatedAt.Format("2006-01-02"))
		}
	}

	fmt.Fprintf(&sb, "\nToday's date: %s\n", time.Now().Format("2006-01-02"))
	return sb.String(), nil
}

// historyMessages converts the persisted thread tail into provider messages.
// Tool rows never reach the provider on later turns.
func historyMessages(msgs []*model.ChatMessage) []ai.Message {
	out := make([]ai.Message, 0, len(msgs))
	for _, m := range msgs {
		role := ai.RoleUser
		if m.SenderRole == model.SenderRoleAssistant {
			role = ai.RoleAssistant
		}
		out = append(out, ai.Message{Role: role, Content: m.Content})
	}
	return out
}
