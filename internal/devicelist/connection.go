package devicelist

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/micro-ha/att-presence/addon/internal/model"
)

var barsPattern = regexp.MustCompile(`(\d+)\s*bars?`)

type connection struct {
	Type        model.ConnectionType
	Interface   string
	SignalBars  *int
	Band        string
	NetworkName string
}

// parseConnection reads the Connection Type cell. Wired ports read like
// "Ethernet LAN-2"; wireless cells carry a signal image plus band and SSID text.
func parseConnection(td *html.Node) connection {
	text := textOf(td)
	switch {
	case strings.Contains(text, "Ethernet"):
		return connection{Type: model.ConnectionEthernet, Interface: text}
	case strings.Contains(text, "Wi-Fi"):
		conn := connection{Type: model.ConnectionWiFi}
		if img := findFirst(td, atom.Img); img != nil {
			if m := barsPattern.FindStringSubmatch(attr(img, "alt")); m != nil {
				if bars, err := strconv.Atoi(m[1]); err == nil {
					conn.SignalBars = &bars
				}
			}
		}
		fields := strings.Fields(text)
		for i, field := range fields {
			switch {
			case strings.Contains(field, "GHz") && conn.Band == "":
				if field == "GHz" && i > 0 {
					conn.Band = fields[i-1] + " GHz"
				} else {
					conn.Band = field
				}
			case field == "Name:" && i+1 < len(fields):
				conn.NetworkName = fields[i+1]
			}
		}
		return conn
	default:
		return connection{Type: model.ConnectionUnknown}
	}
}

func applyConnection(rec *model.DeviceRecord, conn connection) {
	rec.ConnectionType = conn.Type
	rec.Interface = conn.Interface
	rec.SignalBars = conn.SignalBars
	rec.Band = conn.Band
	rec.NetworkName = conn.NetworkName
}
