package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/voluzi/procview/pkg/client"
	"github.com/voluzi/procview/pkg/environ"
	"github.com/voluzi/procview/pkg/server"
	"github.com/voluzi/procview/pkg/sysinfo"
)

var topLimit int
var topSort string
var topWatch bool

var topCmd = &cobra.Command{
	Use:   "top [address]",
	Short: "Prints the busiest processes of a running procview server",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		address := environ.GetString("ADDRESS", server.DefaultAddress)
		if len(args) > 0 {
			address = args[0]
		}
		if topSort != "cpu" && topSort != "mem" && topSort != "pid" {
			return fmt.Errorf("invalid sort %q, expected cpu, mem or pid", topSort)
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		c := client.NewClient(address)

		snap, err := c.Current(ctx)
		if err != nil {
			return err
		}
		if snap == nil {
			// The server may be idle; a poll wakes it up.
			h, err := c.Poll(ctx, 0, 10*time.Second)
			if err != nil {
				return err
			}
			if h == nil || len(h.Snapshots) == 0 {
				return fmt.Errorf("no snapshot available from %s", c.URL())
			}
			snap = h.Snapshots[len(h.Snapshots)-1]
		}
		printTop(os.Stdout, snap, topSort, topLimit)

		for topWatch {
			h, err := c.Poll(ctx, snap.Seq, 30*time.Second)
			if err != nil {
				return err
			}
			if h == nil || len(h.Snapshots) == 0 {
				continue
			}
			if h.Gap {
				log.WithField("missed", h.Missed).Warn("missed snapshots")
			}
			snap = h.Snapshots[len(h.Snapshots)-1]
			fmt.Fprintln(os.Stdout)
			printTop(os.Stdout, snap, topSort, topLimit)
		}
		return nil
	},
}

func init() {
	topCmd.Flags().IntVarP(&topLimit, "limit", "n",
		environ.GetInt("TOP_LIMIT", 15),
		"Number of processes to print (0 for all)",
	)
	topCmd.Flags().StringVar(&topSort, "sort",
		environ.GetString("TOP_SORT", "cpu"),
		"Sort order. One of cpu, mem, pid.",
	)
	topCmd.Flags().BoolVarP(&topWatch, "watch", "w", false,
		"Keep printing as new snapshots arrive",
	)
}

// sortProcesses returns a sorted copy; the snapshot itself is never modified.
func sortProcesses(processes []sysinfo.ProcessInfo, by string) []sysinfo.ProcessInfo {
	out := append([]sysinfo.ProcessInfo(nil), processes...)
	sort.SliceStable(out, func(i, j int) bool {
		switch by {
		case "mem":
			return out[i].RSS > out[j].RSS
		case "pid":
			return out[i].PID < out[j].PID
		default:
			return out[i].CPUPercent > out[j].CPUPercent
		}
	})
	return out
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

func printTop(w io.Writer, snap *sysinfo.Snapshot, by string, limit int) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%s  seq %d", snap.Host.Hostname, snap.Seq))+
		"  "+dimStyle.Render(snap.Timestamp.Format(time.RFC3339)))
	fmt.Fprintf(w, "cpu %.1f%%  mem %s / %s  swap %s / %s\n",
		snap.TotalCPUUsage(),
		datasize.ByteSize(snap.Memory.Used).HumanReadable(),
		datasize.ByteSize(snap.Memory.Total).HumanReadable(),
		datasize.ByteSize(snap.Memory.SwapUsed).HumanReadable(),
		datasize.ByteSize(snap.Memory.SwapTotal).HumanReadable(),
	)
	if snap.Load != nil {
		fmt.Fprintf(w, "load %.2f %.2f %.2f\n", snap.Load.Load1, snap.Load.Load5, snap.Load.Load15)
	}

	rows := sortProcesses(snap.Processes, by)
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	t := table.New().
		Border(lipgloss.HiddenBorder()).
		Headers("PID", "PPID", "CPU%", "MEM", "STATUS", "NAME").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.PaddingRight(1)
			}
			return lipgloss.NewStyle().PaddingRight(1)
		})
	for _, p := range rows {
		t.Row(
			strconv.Itoa(int(p.PID)),
			strconv.Itoa(int(p.PPID)),
			strconv.FormatFloat(p.CPUPercent, 'f', 1, 64),
			datasize.ByteSize(p.RSS).HumanReadable(),
			p.Status,
			p.Name,
		)
	}
	fmt.Fprintln(w, t.Render())
}
