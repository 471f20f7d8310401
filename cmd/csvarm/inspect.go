package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"go.uber.org/multierr"

	"github.com/gwillem/csvarm/pkg/motion"
	"github.com/gwillem/csvarm/pkg/trajectory"
)

type InspectCommand struct {
	Args struct {
		Recordings []string `positional-arg-name:"RECORDING" description:"Recording names or .csv paths (default: all)"`
	} `positional-args:"yes"`
}

// recordingInfo is what inspect reports about one recording.
type recordingInfo struct {
	name   string
	rows   int
	fields int
	first  string
	err    error
}

func (c *InspectCommand) Execute(args []string) error {
	w, err := openWorkspace("")
	if err != nil {
		return err
	}
	defer w.Close()

	names := c.Args.Recordings
	if len(names) == 0 {
		if names, err = w.recordings(); err != nil {
			return err
		}
	}
	if len(names) == 0 {
		fmt.Println(dimStyle.Render("No recordings in " + w.location()))
		return nil
	}

	policy, err := w.fieldPolicy()
	if err != nil {
		return err
	}

	infos := make([]recordingInfo, 0, len(names))
	for _, name := range names {
		infos = append(infos, inspectRecording(name, w.store(name), policy))
	}
	fmt.Println(renderRecordings(infos, w.cfg.Replay.Hz))
	return nil
}

// inspectRecording counts the rows of store and decodes its first row with
// policy. Problems are reported in the result rather than returned.
func inspectRecording(name string, store trajectory.Store, policy motion.FieldPolicy) (info recordingInfo) {
	info.name = name
	defer func() {
		info.err = multierr.Append(info.err, store.Close())
	}()

	n, err := store.OpenForRead()
	if err != nil {
		info.err = err
		return info
	}
	info.rows = n
	if n == 0 {
		return info
	}

	row, err := store.NextRow()
	if err != nil {
		info.err = err
		return info
	}
	info.fields = len(row)

	joints, err := policy.Select(row)
	if err != nil {
		info.err = err
		return info
	}
	values := make([]string, len(joints))
	for i, v := range joints {
		values[i] = strconv.FormatFloat(v, 'f', 1, 64)
	}
	info.first = strings.Join(values, " ")
	return info
}

func renderRecordings(infos []recordingInfo, hz int) string {
	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		status := successStyle.Render("ok")
		if info.err != nil {
			status = errorStyle.Render(info.err.Error())
		}
		duration := time.Duration(info.rows) * time.Second / time.Duration(hz)
		rows = append(rows, []string{
			info.name,
			strconv.Itoa(info.rows),
			layoutName(info.fields),
			duration.Round(100 * time.Millisecond).String(),
			info.first,
			status,
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Recording", "Rows", "Layout", "Duration", "First joints", "Status").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			if col == 0 {
				return tableMotorStyle
			}
			return tableCellStyle
		})
	return t.Render()
}

func layoutName(fields int) string {
	switch {
	case fields == 0:
		return "-"
	case fields == trajectory.FrameWidth:
		return "frame (13)"
	default:
		return fmt.Sprintf("%d fields", fields)
	}
}

func (w *workspace) location() string {
	if w.db != nil {
		return w.cfg.Replay.Database
	}
	return w.cfg.Replay.Dir
}
