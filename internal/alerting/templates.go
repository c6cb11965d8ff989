// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package alerting

import (
	"fmt"
	"math"
	"strings"

	"github.com/tomtom215/moodlog/internal/deviation"
	"github.com/tomtom215/moodlog/internal/emotion"
)

// All user-facing text is templated so the output is deterministic.

func riskAlert(in Input, dominant string) Alert {
	base, cur := in.Baseline[dominant], in.Vector[dominant]
	return Alert{
		Type:     TypeRisk,
		Priority: PriorityCritical,
		Title:    fmt.Sprintf("Mental Health Alert: elevated %s", dominant),
		Message: fmt.Sprintf(
			"Your latest entry is far from your usual pattern and %s stands out. You don't have to face this alone.",
			dominant),
		Description: "Consider reviewing your recent entries, reaching out to someone you trust or practicing a coping strategy.",
		Trigger: TriggerData{
			Kind:             TypeRisk,
			EmotionType:      dominant,
			DeviationScore:   f64(in.Result.DeviationScore),
			BaselineValue:    f64(base),
			CurrentValue:     f64(cur),
			PercentageChange: f64(percentageChange(base, cur)),
			AlertReason:      "significant deviation with a negative dominant emotion",
		},
	}
}

func deviationAlert(in Input, dominant string) Alert {
	a := Alert{
		Type:        TypeDeviation,
		Priority:    PriorityHigh,
		Title:       "Emotional Shift Detected",
		Message:     "Your latest entry differs noticeably from your typical pattern.",
		Description: "This deviation from your baseline might indicate a shift in your emotional state. Reflect on what's changed.",
		Trigger: TriggerData{
			Kind:           TypeDeviation,
			DeviationScore: f64(in.Result.DeviationScore),
			AlertReason:    "significant deviation from baseline",
		},
	}
	if dominant == "" {
		return a
	}

	base, cur := in.Baseline[dominant], in.Vector[dominant]
	pct := percentageChange(base, cur)
	direction := "increased"
	if cur < base {
		direction = "decreased"
	}
	switch {
	case math.Abs(pct) > 100:
		a.Message = fmt.Sprintf("Your %s level is significantly different from your baseline. It's more than doubled.", dominant)
	case math.Abs(pct) > 50:
		a.Message = fmt.Sprintf("Your %s level has %s notably, by about %.0f%% from your baseline.", dominant, direction, math.Abs(pct))
	default:
		a.Message = fmt.Sprintf("I notice your %s level has %s compared to your typical pattern.", dominant, direction)
	}
	a.Title = fmt.Sprintf("%s Level Changed", capitalize(dominant))
	a.Trigger.EmotionType = dominant
	a.Trigger.BaselineValue = f64(base)
	a.Trigger.CurrentValue = f64(cur)
	a.Trigger.PercentageChange = f64(pct)
	return a
}

func patternAlert(in Input, dominant string) Alert {
	a := Alert{
		Type:        TypePattern,
		Priority:    PriorityMedium,
		Title:       "Pattern Detected: emotional shift",
		Message:     "Your latest entry shows a moderate shift from your usual emotional pattern.",
		Description: "Small shifts are normal. Keep an eye on how this develops over your next few entries.",
		Trigger: TriggerData{
			Kind:           TypePattern,
			EmotionType:    dominant,
			DeviationScore: f64(in.Result.DeviationScore),
			AlertReason:    "moderate deviation from baseline",
		},
	}
	return a
}

func persistentAlert(in Input, run int) Alert {
	var message string
	switch {
	case run >= 5:
		message = "I've noticed you've been experiencing challenging emotions for several entries in a row."
	case run >= 4:
		message = "Your recent entries show a pattern of elevated negative emotions."
	default:
		message = "I've noticed some challenging emotions appearing regularly in your recent entries."
	}
	return Alert{
		Type:     TypePattern,
		Priority: PriorityMedium,
		Title:    "Pattern Detected: persistent negativity",
		Message:  message,
		Description: fmt.Sprintf(
			"Your last %d entries were led by a difficult emotion. Consider reaching out for support or reviewing your wellbeing strategies.",
			run),
		Trigger: TriggerData{
			Kind:             TypePattern,
			DeviationScore:   f64(in.Result.DeviationScore),
			ConsecutiveCount: intPtr(run),
			AlertReason:      "persistent_negativity",
		},
	}
}

func spikeAlert(in Input, name string, base, cur float64) Alert {
	pct := percentageChange(base, cur)
	var message string
	switch {
	case base == 0:
		message = fmt.Sprintf("%s appeared strongly in your latest entry.", capitalize(name))
	case pct > 100:
		message = fmt.Sprintf("I notice %s has sharply increased. It's now more than double your usual level.", name)
	case pct > 50:
		message = fmt.Sprintf("%s appears to have spiked significantly in your latest entry.", capitalize(name))
	default:
		message = fmt.Sprintf("There's a noticeable increase in %s compared to your usual level.", name)
	}
	return Alert{
		Type:        TypeSpike,
		Priority:    PriorityHigh,
		Title:       fmt.Sprintf("Sudden %s Increase", capitalize(name)),
		Message:     message,
		Description: "This sudden change is worth noticing. Take a moment to reflect on what triggered this shift.",
		Trigger: TriggerData{
			Kind:             TypeSpike,
			EmotionType:      name,
			DeviationScore:   f64(in.Result.DeviationScore),
			BaselineValue:    f64(base),
			CurrentValue:     f64(cur),
			PercentageChange: f64(pct),
			AlertReason:      "sudden emotion spike",
		},
	}
}

func positiveAlert(in Input, dominant string) Alert {
	return Alert{
		Type:        TypePositiveMilestone,
		Priority:    PriorityInfo,
		Title:       fmt.Sprintf("Positive Moment: %s", dominant),
		Message:     fmt.Sprintf("Your latest entry is steady and %s leads the way. Keep it up!", dominant),
		Description: "Noticing what went well helps it happen again.",
		Trigger: TriggerData{
			Kind:           TypePositiveMilestone,
			EmotionType:    dominant,
			DeviationScore: f64(in.Result.DeviationScore),
			CurrentValue:   f64(in.Vector[dominant]),
			AlertReason:    "stable entry with a positive dominant emotion",
		},
	}
}

func baselineUpdateAudit(in Input) Alert {
	return Alert{
		Type:     TypeBaselineUpdate,
		Priority: PriorityLow,
		Title:    "Baseline Updated",
		Message:  fmt.Sprintf("Your emotional baseline has been updated with your latest entry (#%d).", in.SampleCount),
		Trigger: TriggerData{
			Kind:           TypeBaselineUpdate,
			DeviationScore: f64(in.Result.DeviationScore),
			EntryCount:     intPtr(in.SampleCount),
			AlertReason:    "baseline updated",
		},
	}
}

var recommendationCatalog = map[string][]struct {
	typ     RecommendationType
	message string
}{
	emotion.GroupDepression: {
		{RecExercise, "Some gentle movement or a walk could help shift your energy."},
		{RecSocial, "Reaching out to a friend or loved one might provide comfort."},
		{RecJournaling, "Writing down your thoughts can help process what you're feeling."},
	},
	emotion.GroupAnxiety: {
		{RecMeditation, "A few minutes of deep breathing might help ground you right now."},
		{RecSocial, "Talking things through with someone you trust can ease worry."},
		{RecJournaling, "Listing what is and isn't in your control can make things feel lighter."},
	},
	emotion.GroupStress: {
		{RecExercise, "A short burst of physical activity can release built-up tension."},
		{RecMeditation, "Try the 4-7-8 breathing technique: inhale for 4, hold for 7, exhale for 8."},
		{RecJournaling, "Naming what is frustrating you can take some of its weight away."},
	},
	emotion.GroupPositive: {
		{RecJournaling, "Keep nurturing your well-being with activities that bring you joy."},
		{RecSocial, "Sharing a good moment with someone can make it last longer."},
	},
	emotion.GroupOther: {
		{RecJournaling, "Writing down your thoughts can help process what you're feeling."},
		{RecMeditation, "A brief mindfulness exercise might help you reconnect with the present."},
	},
}

const maxRecommendations = 3

func recommendationsFor(group string, priority Priority) []Recommendation {
	entries, ok := recommendationCatalog[group]
	if !ok {
		entries = recommendationCatalog[emotion.GroupOther]
	}
	out := make([]Recommendation, 0, maxRecommendations)
	for _, e := range entries {
		if len(out) == maxRecommendations {
			break
		}
		out = append(out, Recommendation{Type: e.typ, Message: e.message, Priority: priority})
	}
	return out
}

func summaryFor(alerts []Alert, dominant string, status deviation.Status) string {
	var highest Priority
	positiveOnly := len(alerts) > 0
	for _, a := range alerts {
		if a.Priority > highest {
			highest = a.Priority
		}
		if a.Type != TypePositiveMilestone {
			positiveOnly = false
		}
	}

	var summary string
	switch {
	case len(alerts) == 0:
		summary = "Your emotional patterns are stable and within your normal range."
	case highest == PriorityCritical:
		summary = "I'm noticing some significant emotional challenges today. You don't have to face this alone."
	case highest == PriorityHigh:
		summary = "Today seems to be bringing some intense feelings. Let's work through this together."
	case positiveOnly:
		summary = "I'm seeing some wonderful positive shifts in how you're feeling!"
	default:
		summary = "I've noticed some changes in your emotional patterns today."
	}
	if dominant != "" {
		summary += fmt.Sprintf(" Your strongest emotion in this entry is %s (%s).", dominant, status)
	}
	return summary
}

func supportiveNoteFor(status deviation.Status) string {
	switch status {
	case deviation.StatusSignificant:
		return "Remember, it's okay to not be okay. I'm here for you."
	case deviation.StatusModerate:
		return "Take things one step at a time today."
	default:
		return "I'm here whenever you need to talk."
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
