package ui

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"github.com/wifibear/capvault/internal/registry"
	"github.com/wifibear/capvault/pkg/wifi"
)

// Source is the read-only query surface the browser renders.
type Source interface {
	AllBSSIDs() map[string]wifi.AccessPoint
	AllStations() map[string]wifi.Station
	PcapRecords() map[string]registry.PcapEntry
	AnalysisForBSSID(bssid string) []wifi.HandshakeCapture
	Stats() registry.Stats
}

// View represents which screen the TUI is showing.
type View int

const (
	ViewAccessPoints View = iota
	ViewStations
	ViewCaptures
	ViewDetail
	ViewHelp
)

var tabs = []struct {
	view  View
	title string
}{
	{ViewAccessPoints, "Access Points"},
	{ViewStations, "Stations"},
	{ViewCaptures, "Captures"},
}

// App is the main Bubble Tea model.
type App struct {
	src Source

	view   View
	tab    View
	width  int
	height int

	aps      []wifi.AccessPoint
	stations []wifi.Station
	pcaps    []registry.PcapEntry
	stats    registry.Stats
	loadedAt time.Time
	cursor   map[View]int
}

type refreshMsg time.Time

func NewApp(src Source) *App {
	a := &App{
		src:    src,
		view:   ViewAccessPoints,
		tab:    ViewAccessPoints,
		cursor: make(map[View]int),
	}
	a.reload(time.Now())
	return a
}

func (a *App) Init() tea.Cmd {
	return nil
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)

	case refreshMsg:
		a.reload(time.Time(msg))
		return a, nil
	}
	return a, nil
}

func (a *App) View() string {
	switch a.view {
	case ViewDetail:
		return a.renderDetailView()
	case ViewHelp:
		return a.renderHelpView()
	default:
		return a.renderListView()
	}
}

// reload pulls fresh copies from the source, newest activity first.
func (a *App) reload(at time.Time) {
	a.aps = a.aps[:0]
	for _, ap := range a.src.AllBSSIDs() {
		a.aps = append(a.aps, ap)
	}
	slices.SortFunc(a.aps, func(x, y wifi.AccessPoint) int {
		if c := y.LastSeen.Compare(x.LastSeen); c != 0 {
			return c
		}
		return cmp.Compare(x.BSSID, y.BSSID)
	})

	a.stations = a.stations[:0]
	for _, st := range a.src.AllStations() {
		a.stations = append(a.stations, st)
	}
	slices.SortFunc(a.stations, func(x, y wifi.Station) int {
		if c := y.LastSeen.Compare(x.LastSeen); c != 0 {
			return c
		}
		return cmp.Compare(x.MAC, y.MAC)
	})

	a.pcaps = a.pcaps[:0]
	for _, e := range a.src.PcapRecords() {
		a.pcaps = append(a.pcaps, e)
	}
	slices.SortFunc(a.pcaps, func(x, y registry.PcapEntry) int {
		if c := y.Created.Compare(x.Created); c != 0 {
			return c
		}
		return cmp.Compare(x.Filename, y.Filename)
	})

	a.stats = a.src.Stats()
	a.loadedAt = at
	for _, t := range tabs {
		if n := a.rowCount(t.view); a.cursor[t.view] >= n {
			a.cursor[t.view] = max(n-1, 0)
		}
	}
}

func (a *App) rowCount(v View) int {
	switch v {
	case ViewAccessPoints:
		return len(a.aps)
	case ViewStations:
		return len(a.stations)
	case ViewCaptures:
		return len(a.pcaps)
	}
	return 0
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return a, tea.Quit

	case "?":
		if a.view == ViewHelp {
			a.view = a.tab
		} else {
			a.view = ViewHelp
		}
		return a, nil

	case "r":
		return a, func() tea.Msg { return refreshMsg(time.Now()) }

	case "esc":
		a.view = a.tab
		return a, nil
	}

	if a.view == ViewDetail || a.view == ViewHelp {
		return a, nil
	}

	switch msg.String() {
	case "tab", "l", "right":
		a.switchTab(1)
	case "shift+tab", "h", "left":
		a.switchTab(-1)
	case "1":
		a.tab, a.view = ViewAccessPoints, ViewAccessPoints
	case "2":
		a.tab, a.view = ViewStations, ViewStations
	case "3":
		a.tab, a.view = ViewCaptures, ViewCaptures
	case "up", "k":
		if a.cursor[a.tab] > 0 {
			a.cursor[a.tab]--
		}
	case "down", "j":
		if a.cursor[a.tab] < a.rowCount(a.tab)-1 {
			a.cursor[a.tab]++
		}
	case "g", "home":
		a.cursor[a.tab] = 0
	case "G", "end":
		a.cursor[a.tab] = max(a.rowCount(a.tab)-1, 0)
	case "enter":
		if a.rowCount(a.tab) > 0 {
			a.view = ViewDetail
		}
	}
	return a, nil
}

func (a *App) switchTab(delta int) {
	n := len(tabs)
	a.tab = tabs[((int(a.tab)+delta)%n+n)%n].view
	a.view = a.tab
}

// Rendering

func (a *App) renderHeader() string {
	title := bannerStyle.Render("capvault")
	status := statusBarStyle.Render(fmt.Sprintf(
		"BSSIDs: %d | Stations: %d | Captures: %d | Handshakes: %d | %s",
		a.stats.BSSIDs, a.stats.Stations, a.stats.Pcaps, a.stats.Handshakes,
		humanize.IBytes(uint64(max(a.stats.ArchiveBytes, 0))),
	))

	gap := ""
	if a.width > 0 {
		if n := a.width - len("capvault") - len(status) - 4; n > 0 {
			gap = strings.Repeat(" ", n)
		}
	}
	return borderStyle.Render(title + "  " + gap + status)
}

func (a *App) renderTabs() string {
	parts := make([]string, 0, len(tabs))
	for i, t := range tabs {
		label := fmt.Sprintf("%d %s", i+1, t.title)
		if t.view == a.tab {
			parts = append(parts, activeTabStyle.Render(label))
		} else {
			parts = append(parts, inactiveTabStyle.Render(label))
		}
	}
	return "  " + strings.Join(parts, "   ")
}

func (a *App) renderListView() string {
	var b strings.Builder
	b.WriteString(a.renderHeader())
	b.WriteString("\n")
	b.WriteString(a.renderTabs())
	b.WriteString("\n\n")

	switch a.tab {
	case ViewAccessPoints:
		b.WriteString(a.renderAccessPointTable())
	case ViewStations:
		b.WriteString(a.renderStationTable())
	case ViewCaptures:
		b.WriteString(a.renderCaptureTable())
	}

	b.WriteString("\n")
	b.WriteString(a.renderFooter())
	return b.String()
}

// visible returns the window of rows that fits the terminal around cursor.
func (a *App) visible(n, cursor int) (int, int) {
	rows := a.height - 10
	if a.height == 0 || rows <= 0 || n <= rows {
		return 0, n
	}
	start := min(max(cursor-rows/2, 0), n-rows)
	return start, start + rows
}

func (a *App) renderAccessPointTable() string {
	if len(a.aps) == 0 {
		return dimStyle.Render("  No access points recorded yet.") + "\n"
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-4s %-22s %-19s %3s %-9s %8s %8s %s",
		"#", "ESSID", "BSSID", "CH", "ENC", "BEACONS", "PACKETS", "LAST SEEN")))
	b.WriteString("\n")

	cursor := a.cursor[ViewAccessPoints]
	start, end := a.visible(len(a.aps), cursor)
	for i := start; i < end; i++ {
		ap := a.aps[i]
		line := fmt.Sprintf("  %-4d %-22s %-19s %3s %-9s %8d %8d %s",
			i+1, truncate(displayESSID(ap.ESSID), 22), ap.BSSID, ap.Channel,
			ap.Encryption, ap.Beacons, ap.Packets, when(ap.LastSeen))
		if i == cursor {
			line = selectedRowStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func (a *App) renderStationTable() string {
	if len(a.stations) == 0 {
		return dimStyle.Render("  No stations recorded yet.") + "\n"
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-4s %-19s %-19s %8s %-24s %s",
		"#", "STATION", "BSSID", "PACKETS", "PROBES", "LAST SEEN")))
	b.WriteString("\n")

	cursor := a.cursor[ViewStations]
	start, end := a.visible(len(a.stations), cursor)
	for i := start; i < end; i++ {
		st := a.stations[i]
		assoc := st.AssociatedBSSID
		if assoc == "" {
			assoc = "(not associated)"
		}
		line := fmt.Sprintf("  %-4d %-19s %-19s %8d %-24s %s",
			i+1, st.MAC, assoc, st.Packets, truncate(st.ProbedESSIDs, 24), when(st.LastSeen))
		if i == cursor {
			line = selectedRowStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func (a *App) renderCaptureTable() string {
	if len(a.pcaps) == 0 {
		return dimStyle.Render("  No captures archived yet.") + "\n"
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-4s %-44s %-19s %9s %-5s %s",
		"#", "FILE", "BSSID", "SIZE", "HS", "CREATED")))
	b.WriteString("\n")

	cursor := a.cursor[ViewCaptures]
	start, end := a.visible(len(a.pcaps), cursor)
	for i := start; i < end; i++ {
		e := a.pcaps[i]
		badge := dimStyle.Render("n/a")
		if e.Analyzed {
			badge = HandshakeBadge(bestKind(e.Analysis))
		}
		line := fmt.Sprintf("  %-4d %-44s %-19s %9s %-5s %s",
			i+1, truncate(e.Filename, 44), e.BSSID, humanize.IBytes(uint64(max(e.Size, 0))), badge, when(e.Created))
		if i == cursor {
			line = selectedRowStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func (a *App) renderFooter() string {
	keys := []struct{ key, desc string }{
		{"Enter", "Details"},
		{"Tab", "Switch"},
		{"r", "Refresh"},
		{"?", "Help"},
		{"q", "Quit"},
	}
	s := "  "
	for i, k := range keys {
		if i > 0 {
			s += "  "
		}
		s += keyStyle.Render("["+k.key+"]") + " " + helpStyle.Render(k.desc)
	}
	s += "  " + progressStyle.Render("loaded "+a.loadedAt.Format("15:04:05"))
	return borderStyle.Render(s)
}

func (a *App) renderDetailView() string {
	var b strings.Builder
	b.WriteString(a.renderHeader())
	b.WriteString("\n\n")

	switch a.tab {
	case ViewAccessPoints:
		b.WriteString(a.renderAccessPointDetail(a.aps[a.cursor[ViewAccessPoints]]))
	case ViewStations:
		b.WriteString(a.renderStationDetail(a.stations[a.cursor[ViewStations]]))
	case ViewCaptures:
		b.WriteString(a.renderCaptureDetail(a.pcaps[a.cursor[ViewCaptures]]))
	}

	b.WriteString("\n")
	b.WriteString(borderStyle.Render("  " + keyStyle.Render("[Esc]") + " " + helpStyle.Render("Back") +
		"  " + keyStyle.Render("[q]") + " " + helpStyle.Render("Quit")))
	return b.String()
}

func field(b *strings.Builder, name, value string) {
	fmt.Fprintf(b, "  %s %s\n", infoStyle.Render(fmt.Sprintf("%-14s", name)), value)
}

func (a *App) renderAccessPointDetail(ap wifi.AccessPoint) string {
	var b strings.Builder
	b.WriteString(bannerStyle.Render("  "+displayESSID(ap.ESSID)) + "\n\n")
	field(&b, "BSSID", ap.BSSID)
	field(&b, "Channel", ap.Channel)
	field(&b, "Encryption", EncryptionColor(ap.Encryption))
	field(&b, "Beacons", humanize.Comma(int64(ap.Beacons)))
	field(&b, "Packets", humanize.Comma(int64(ap.Packets)))
	field(&b, "First seen", stamp(ap.FirstSeen))
	field(&b, "Last seen", stamp(ap.LastSeen))
	if len(ap.ESSIDHistory) > 0 {
		field(&b, "ESSID history", strings.Join(ap.ESSIDHistory, ", "))
	}

	var clients []string
	for _, st := range a.stations {
		if st.AssociatedBSSID == ap.BSSID {
			clients = append(clients, st.MAC)
		}
	}
	if len(clients) > 0 {
		field(&b, "Clients", strings.Join(clients, ", "))
	}

	b.WriteString("\n" + infoStyle.Render("  Handshakes:") + "\n")
	b.WriteString(renderCaptures(a.src.AnalysisForBSSID(ap.BSSID)))
	return b.String()
}

func (a *App) renderStationDetail(st wifi.Station) string {
	var b strings.Builder
	b.WriteString(bannerStyle.Render("  "+st.MAC) + "\n\n")
	assoc := dimStyle.Render("(not associated)")
	if st.AssociatedBSSID != "" {
		assoc = st.AssociatedBSSID
		if i := slices.IndexFunc(a.aps, func(ap wifi.AccessPoint) bool { return ap.BSSID == st.AssociatedBSSID }); i >= 0 {
			assoc += " " + dimStyle.Render(displayESSID(a.aps[i].ESSID))
		}
	}
	field(&b, "Associated", assoc)
	field(&b, "Probed ESSIDs", st.ProbedESSIDs)
	field(&b, "Packets", humanize.Comma(int64(st.Packets)))
	field(&b, "First seen", stamp(st.FirstSeen))
	field(&b, "Last seen", stamp(st.LastSeen))
	return b.String()
}

func (a *App) renderCaptureDetail(e registry.PcapEntry) string {
	var b strings.Builder
	b.WriteString(bannerStyle.Render("  "+e.Filename) + "\n\n")
	field(&b, "BSSID", e.BSSID)
	field(&b, "Created", stamp(e.Created))
	field(&b, "Size", humanize.IBytes(uint64(max(e.Size, 0))))
	field(&b, "Path", e.Path)
	if e.Digest != "" {
		field(&b, "BLAKE2b", e.Digest)
	}
	if !e.Analyzed {
		field(&b, "Analysis", dimStyle.Render("not analysed"))
		return b.String()
	}
	b.WriteString("\n" + infoStyle.Render("  Handshakes:") + "\n")
	b.WriteString(renderCaptures(e.Analysis))
	return b.String()
}

func renderCaptures(captures []wifi.HandshakeCapture) string {
	if len(captures) == 0 {
		return dimStyle.Render("  none") + "\n"
	}
	var b strings.Builder
	for _, h := range captures {
		client := h.ClientMAC
		if client == "" {
			client = "?"
		}
		fmt.Fprintf(&b, "  %-5s %s  client %s  %d EAPOL  %s\n",
			HandshakeBadge(h.Kind), h.Kind, client, h.EAPOLFrames, strings.Join(h.Messages, " "))
		if h.PMKID != "" {
			fmt.Fprintf(&b, "        %s %s\n", dimStyle.Render("pmkid"), h.PMKID)
		}
		if h.SourceFile != "" {
			fmt.Fprintf(&b, "        %s\n", dimStyle.Render(h.SourceFile))
		}
	}
	return b.String()
}

func (a *App) renderHelpView() string {
	s := a.renderHeader() + "\n\n"
	s += bannerStyle.Render("  Keyboard Shortcuts") + "\n\n"

	help := []struct{ key, desc string }{
		{"j/k or Up/Down", "Navigate rows"},
		{"g/G", "First/last row"},
		{"Tab or h/l", "Switch table"},
		{"1/2/3", "Access points, stations, captures"},
		{"Enter", "Show details"},
		{"r", "Reload from the registry"},
		{"?", "Toggle help"},
		{"Esc", "Go back"},
		{"q / Ctrl+C", "Quit"},
	}
	for _, h := range help {
		s += fmt.Sprintf("  %s  %s\n",
			keyStyle.Render(fmt.Sprintf("%-20s", h.key)),
			helpStyle.Render(h.desc),
		)
	}

	s += "\n"
	s += borderStyle.Render("  " + keyStyle.Render("[Esc]") + " " + helpStyle.Render("Back"))
	return s
}

func bestKind(captures []wifi.HandshakeCapture) wifi.HandshakeKind {
	var best wifi.HandshakeKind
	rank := map[wifi.HandshakeKind]int{wifi.HandshakePartial: 1, wifi.HandshakeComplete: 2, wifi.PMKIDCapture: 3}
	for _, h := range captures {
		if rank[h.Kind] > rank[best] {
			best = h.Kind
		}
	}
	return best
}

func displayESSID(essid string) string {
	if essid == "" || essid == wifi.HiddenESSID {
		return "<hidden>"
	}
	return essid
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-2] + ".."
}

func when(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return humanize.Time(t)
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return dimStyle.Render("unknown")
	}
	return t.Local().Format("2006-01-02 15:04:05") + " " + dimStyle.Render("("+humanize.Time(t)+")")
}

// Run starts the Bubble Tea program.
func Run(app *App) error {
	p := tea.NewProgram(app, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
