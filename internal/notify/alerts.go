package notify

import (
	"fmt"
	"strings"

	"github.com/wonny/aegis-risk/internal/contracts"
	"github.com/wonny/aegis-risk/internal/monitor"
)

// AlertNotification renders a risk alert for one recipient
func AlertNotification(recipient string, a monitor.Alert) contracts.Notification {
	var body strings.Builder
	body.WriteString(a.Summary())
	body.WriteString("\n")
	body.WriteString(a.Message)
	fmt.Fprintf(&body, "\nalert id: %s\nraised at: %s", a.ID, a.CreatedAt.UTC().Format("2006-01-02 15:04:05 MST"))

	return contracts.Notification{
		Recipient: recipient,
		Subject:   fmt.Sprintf("[%s] %s alert for portfolio %d", a.Severity, a.RiskType, a.PortfolioID),
		Body:      body.String(),
	}
}

// AlertHook returns a monitor hook that queues the alert for every recipient
func AlertHook(d *Dispatcher, recipients []string) monitor.AlertHook {
	return func(a monitor.Alert) {
		for _, r := range recipients {
			d.Enqueue(AlertNotification(r, a))
		}
	}
}
