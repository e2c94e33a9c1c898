package devicelist

import (
	"bytes"
	"fmt"
	"net"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/micro-ha/att-presence/addon/internal/gateway"
	"github.com/micro-ha/att-presence/addon/internal/model"
)

const (
	labelMAC            = "MAC Address"
	labelIPName         = "IPv4 Address / Name"
	labelName           = "Name"
	labelStatus         = "Status"
	labelLastActivity   = "Last Activity"
	labelAllocation     = "Allocation"
	labelConnectionType = "Connection Type"
	labelConnectionSpd  = "Connection Speed"
)

// VendorLookup resolves the manufacturer of a MAC for placeholder names.
type VendorLookup interface {
	Lookup(mac string) string
}

type Parser struct {
	vendors VendorLookup
}

func New(vendors VendorLookup) *Parser {
	return &Parser{vendors: vendors}
}

// Parse extracts one record per device block of the router's device table.
// Blocks without a valid 48-bit MAC are dropped; a page with no table at all is a parse error.
func (p *Parser) Parse(page gateway.RawPage) ([]model.DeviceRecord, error) {
	doc, err := html.Parse(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
	}
	table := findDeviceTable(doc)
	if table == nil {
		return nil, fmt.Errorf("%w: device table not found", model.ErrParse)
	}

	var (
		records []model.DeviceRecord
		index   = map[string]int{}
		current = map[string]*html.Node{}
	)
	flush := func() {
		rec, ok := p.buildRecord(current)
		current = map[string]*html.Node{}
		if !ok {
			return
		}
		if i, dup := index[rec.MAC]; dup {
			records[i] = rec
			return
		}
		index[rec.MAC] = len(records)
		records = append(records, rec)
	}

	for _, row := range findAll(table, atom.Tr) {
		th := findRowHeader(row)
		td := findFirst(row, atom.Td)
		if th == nil || td == nil {
			if hasSeparator(row) {
				flush()
			}
			continue
		}
		label := textOf(th)
		if label == labelMAC {
			if _, seen := current[labelMAC]; seen {
				// A new MAC row without a separator starts the next block.
				flush()
			}
		}
		current[label] = td
	}
	flush()

	if records == nil {
		records = []model.DeviceRecord{}
	}
	return records, nil
}

func (p *Parser) buildRecord(fields map[string]*html.Node) (model.DeviceRecord, bool) {
	macNode, ok := fields[labelMAC]
	if !ok {
		return model.DeviceRecord{}, false
	}
	mac := model.NormalizeMAC(textOf(macNode))
	if hw, err := net.ParseMAC(mac); err != nil || len(hw) != 6 {
		// Placeholders such as "N/A" would otherwise become a permanent identity.
		return model.DeviceRecord{}, false
	}

	rec := model.DeviceRecord{MAC: mac, ConnectionType: model.ConnectionUnknown, Online: true}
	if td, ok := fields[labelIPName]; ok {
		ip, name, _ := strings.Cut(textOf(td), "/")
		rec.IP = strings.TrimSpace(ip)
		rec.Name = strings.TrimSpace(name)
	}
	if td, ok := fields[labelName]; ok {
		if name := textOf(td); name != "" {
			rec.Name = name
		}
	}
	if td, ok := fields[labelStatus]; ok {
		rec.Status = strings.ToLower(textOf(td))
		rec.Online = rec.Status != model.StatusOff
	}
	if td, ok := fields[labelLastActivity]; ok {
		rec.LastActivity = textOf(td)
	}
	if td, ok := fields[labelAllocation]; ok {
		rec.Allocation = textOf(td)
	}
	if td, ok := fields[labelConnectionSpd]; ok {
		rec.ConnectionSpeed = textOf(td)
	}
	if td, ok := fields[labelConnectionType]; ok {
		applyConnection(&rec, parseConnection(td))
	}
	if isPlaceholderName(rec.Name, rec.MAC) {
		rec.Name = generatedName(mac, p.vendor(mac))
		rec.GeneratedName = true
	}
	return rec, true
}

func (p *Parser) vendor(mac string) string {
	if p.vendors == nil {
		return "Unknown"
	}
	return p.vendors.Lookup(mac)
}

// findDeviceTable prefers the table holding labelled rows over layout tables.
func findDeviceTable(doc *html.Node) *html.Node {
	tables := findAll(doc, atom.Table)
	for _, table := range tables {
		for _, row := range findAll(table, atom.Tr) {
			if th := findRowHeader(row); th != nil && textOf(th) == labelMAC {
				return table
			}
		}
	}
	for _, table := range tables {
		if len(findAll(table, atom.Table)) == 1 {
			return table
		}
	}
	return nil
}

func findRowHeader(row *html.Node) *html.Node {
	for c := row.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Th && attr(c, "scope") == "row" {
			return c
		}
	}
	return nil
}

func hasSeparator(row *html.Node) bool {
	for _, hr := range findAll(row, atom.Hr) {
		if hasClass(hr, "reshr") {
			return true
		}
	}
	return false
}

func generatedName(mac, vendor string) string {
	suffix := strings.ReplaceAll(mac, ":", "")
	if len(suffix) >= 4 {
		suffix = suffix[len(suffix)-4:]
	}
	vendor = strings.TrimSpace(vendor)
	if vendor == "" || vendor == "Unknown" {
		return "Device-" + suffix
	}
	return vendor + "-" + suffix
}

func isPlaceholderName(name, mac string) bool {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "unknown") {
		return true
	}
	return model.NormalizeMAC(name) == mac
}
