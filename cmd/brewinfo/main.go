package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/LynnColeArt/brew"
)

var (
	configFile string
	logLevel   string
	probeOps   int
	interval   time.Duration
)

var (
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white  = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
)

func main() {
	rootCmd := &cobra.Command{
		Use:               "brewinfo",
		Short:             "inspect the brew execution state",
		PersistentPreRunE: applyConfig,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "list the device inventory",
		RunE:  listDevices,
	}
	devicesCmd.Flags().IntVar(&probeOps, "probe", 0, "submit N tasks per device and report throughput")

	propsCmd := &cobra.Command{
		Use:   "props",
		Short: "print process properties and cpu features",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(brew.Props().String())
			fmt.Println(brew.GetCPUInfo())
			return nil
		},
	}

	queryCmd := &cobra.Command{
		Use:   "query",
		Short: "one-shot execution state snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Print(brew.Snapshot().String())
			return nil
		},
	}

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "live execution state dashboard",
		RunE:  runWatch,
	}
	watchCmd.Flags().DurationVar(&interval, "interval", 500*time.Millisecond, "sample interval")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			v, sum := brew.Version()
			fmt.Printf("brew %s %s\n", v, sum)
		},
	}

	rootCmd.AddCommand(devicesCmd, propsCmd, queryCmd, watchCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func applyConfig(cmd *cobra.Command, args []string) error {
	if logLevel != "" {
		brew.SetLogLevel(logLevel)
	}
	if configFile == "" {
		return nil
	}
	cfg, err := brew.LoadConfig(configFile)
	if err != nil {
		return err
	}
	return brew.Configure(cfg)
}

func listDevices(cmd *cobra.Command, args []string) error {
	fmt.Print(brew.DeviceQuery())
	if probeOps <= 0 {
		return nil
	}

	type probe struct {
		id      int
		elapsed time.Duration
	}
	var usable []int
	for id := 0; id < brew.DeviceCount(); id++ {
		if brew.CheckDevice(id) {
			usable = append(usable, id)
		}
	}

	results := make([]probe, len(usable))
	var g errgroup.Group
	for i, id := range usable {
		g.Go(func() error {
			s := brew.NewStream(id)
			defer s.Close()
			start := time.Now()
			for n := 0; n < probeOps; n++ {
				s.Submit(func() {})
			}
			s.Synchronize()
			results[i] = probe{id: id, elapsed: time.Since(start)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Printf("\nprobe: %d tasks per device\n", probeOps)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tTASKS/SEC")
	for _, r := range results {
		fmt.Fprintf(w, "%d\t%v\t%.0f\n", r.id, r.elapsed, float64(probeOps)/r.elapsed.Seconds())
	}
	return w.Flush()
}

const watchSamples = 120

type tickMsg time.Time

type watchModel struct {
	width  int
	status brew.Status
	rss    []float64
	avail  []float64
}

func runWatch(cmd *cobra.Command, args []string) error {
	m := watchModel{width: 80, status: brew.Snapshot()}
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return err
	}
	return nil
}

func (m watchModel) Init() tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tickMsg:
		m.status = brew.Snapshot()
		m.rss = appendSample(m.rss, float64(m.status.RSS)/(1<<20))
		m.avail = appendSample(m.avail, float64(m.status.MinAvailMemory)/(1<<20))
		return m, tea.Tick(interval, func(t time.Time) tea.Msg { return tickMsg(t) })
	}
	return m, nil
}

func appendSample(s []float64, v float64) []float64 {
	s = append(s, v)
	if len(s) > watchSamples {
		s = s[1:]
	}
	return s
}

func (m watchModel) View() string {
	st := m.status
	var b strings.Builder

	b.WriteString(cyan.Render("brew") + " " + white.Render("execution state") +
		"  " + dim.Render(time.Now().Format("15:04:05")) + "\n\n")

	b.WriteString(fmt.Sprintf("mode %s  devices %s  threads %s  streams %s\n",
		yellow.Render(st.Mode.String()),
		white.Render(fmt.Sprintf("%v", st.Devices)),
		white.Render(fmt.Sprintf("%d", st.Threads)),
		white.Render(fmt.Sprintf("%d", st.Streams))))
	b.WriteString(fmt.Sprintf("blas %s  dnn %s  seeds %s  epoch %s\n\n",
		white.Render(fmt.Sprintf("%d", st.BLASHandles)),
		white.Render(fmt.Sprintf("%d", st.DNNHandles)),
		white.Render(fmt.Sprintf("%d", st.SeedsIssued)),
		white.Render(fmt.Sprintf("%d", st.EpochCount))))

	if len(m.rss) >= 2 {
		b.WriteString(asciigraph.Plot(m.rss,
			asciigraph.Height(8),
			asciigraph.Width(graphWidth(m.width)),
			asciigraph.Caption("resident set (MB)")))
		b.WriteString("\n\n")
	}
	if len(m.avail) >= 2 {
		b.WriteString(asciigraph.Plot(m.avail,
			asciigraph.Height(8),
			asciigraph.Width(graphWidth(m.width)),
			asciigraph.Caption("min available device memory (MB)")))
		b.WriteString("\n\n")
	}

	b.WriteString(dim.Render("q quit"))
	return b.String()
}

func graphWidth(w int) int {
	w -= 10
	if w < 40 {
		return 40
	}
	if w > 100 {
		return 100
	}
	return w
}
