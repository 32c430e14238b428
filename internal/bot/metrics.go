package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// commandsTotal counts processed commands by category and outcome.
// Exposed on the web server's /metrics endpoint.
var commandsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ptgbot",
		Name:      "commands_total",
		Help:      "Chat commands processed, by category and outcome.",
	},
	[]string{"kind", "result"},
)
