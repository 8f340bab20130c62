package calendar

import (
	"regexp"
	"strconv"
	"strings"
)

// Defaults applied when an externally created event lacks details.
const (
	defaultClientName = "Cliente externo"
	defaultStylist    = "Por asignar"
)

// Label patterns accepted in event descriptions. Staff write these by hand,
// so both Spanish and English labels are tolerated.
var (
	phoneLabelRe   = regexp.MustCompile(`(?i)(?:tel[eé]fono|tel|phone)\s*:\s*([+\d][\d\s\-]*)`)
	priceLabelRe   = regexp.MustCompile(`(?i)(?:precio|price|total)\s*:\s*\$?\s*([0-9][0-9,]*(?:\.[0-9]+)?)`)
	stylistLabelRe = regexp.MustCompile(`(?i)estilista\s*:\s*(.+)`)
)

// ParseSummary splits an event title of the form
// "Servicio1, Servicio2 - Nombre del Cliente" into its parts. The client
// name comes after the last " - " so service names containing dashes still
// parse. Without a separator the whole title is the service list.
func ParseSummary(summary string) (services []string, clientName string) {
	servicesPart := summary
	clientName = defaultClientName

	// Search before trimming: a trailing "Corte - " still has its separator.
	if idx := strings.LastIndex(summary, " - "); idx >= 0 {
		servicesPart = summary[:idx]
		if name := strings.TrimSpace(summary[idx+3:]); name != "" {
			clientName = name
		}
	} else if trimmed := strings.TrimRight(summary, " "); strings.HasSuffix(trimmed, " -") {
		servicesPart = strings.TrimSuffix(trimmed, " -")
	}

	for _, s := range strings.Split(servicesPart, ",") {
		if s = strings.TrimSpace(s); s != "" {
			services = append(services, s)
		}
	}
	return services, clientName
}

// ParseDescription extracts the labeled fields staff add to event bodies.
// Missing labels return zero values; the caller applies defaults.
func ParseDescription(description string) (phone string, price float64, stylist string) {
	if m := phoneLabelRe.FindStringSubmatch(description); m != nil {
		phone = strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(m[1]))
	}
	if m := priceLabelRe.FindStringSubmatch(description); m != nil {
		raw := strings.ReplaceAll(m[1], ",", "")
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			price = v
		}
	}
	if m := stylistLabelRe.FindStringSubmatch(description); m != nil {
		stylist = strings.TrimSpace(m[1])
	}
	return phone, price, stylist
}
