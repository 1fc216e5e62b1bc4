package view

import (
	"fmt"
	"strings"

	"queuehive/internal/models"
	"queuehive/internal/reconcile"
)

const DegradedMarker = "sync degraded"

// RenderToken formats a tracked token as one line. The position only shows
// while the token is waiting or being called.
func RenderToken(snap reconcile.Snapshot) string {
	if snap.Phase == reconcile.PhaseUnknown {
		parts := []string{fmt.Sprintf("Token #%d", snap.TokenID), "loading"}
		if snap.Degraded {
			parts = append(parts, DegradedMarker)
		}
		return strings.Join(parts, " | ")
	}
	parts := []string{
		fmt.Sprintf("Token %d", snap.Token.TokenNumber),
		string(snap.Token.Status),
	}
	if snap.Token.ServiceType != nil && snap.Token.ServiceType.Name != "" {
		parts = append(parts, snap.Token.ServiceType.Name)
	}
	if snap.HasPosition && snap.Token.Status.Active() {
		parts = append(parts, fmt.Sprintf("position %d", snap.Position))
	}
	if snap.Degraded {
		parts = append(parts, DegradedMarker)
	}
	return strings.Join(parts, " | ")
}

// RenderQueue lists a service queue, one token per line, after a header.
func RenderQueue(snap reconcile.QueueSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Service %d: %d waiting", snap.ServiceID, snap.Waiting())
	if snap.Degraded {
		b.WriteString(" | " + DegradedMarker)
	}
	if snap.MultipleCalling {
		b.WriteString(" | multiple tokens calling")
	}
	for _, token := range snap.Tokens {
		b.WriteString("\n")
		b.WriteString(renderQueueLine(token))
	}
	return b.String()
}

func renderQueueLine(token models.Token) string {
	marker := " "
	if token.Status == models.StatusCalling {
		marker = ">"
	}
	return fmt.Sprintf("%s Token %d | %s", marker, token.TokenNumber, token.Status)
}
