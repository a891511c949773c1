package main

import (
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/nextconvert/cutstudio/internal/modules/media"
	"github.com/nextconvert/cutstudio/internal/modules/presets"
	"github.com/nextconvert/cutstudio/internal/modules/timecode"
)

func newTable(header table.Row, rightAligned ...int) table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(header)

	configs := make([]table.ColumnConfig, 0, len(rightAligned))
	for _, col := range rightAligned {
		configs = append(configs, table.ColumnConfig{Number: col, Align: text.AlignRight, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw
}

func renderPresets(list []presets.Preset) string {
	tw := newTable(table.Row{"ID", "Name", "Width", "Height"}, 3, 4)
	for _, p := range list {
		tw.AppendRow(table.Row{p.ID, p.Name, p.Width, p.Height})
	}
	return tw.Render()
}

func renderMediaInfo(info *media.MediaInfo) string {
	summary := newTable(table.Row{"Format", "Duration", "Size", "Resolution", "FPS"}, 3)
	resolution := "-"
	if info.Width > 0 && info.Height > 0 {
		resolution = fmt.Sprintf("%dx%d", info.Width, info.Height)
	}
	summary.AppendRow(table.Row{
		info.Format,
		timecode.FormatSeconds(int(info.Duration)),
		strconv.FormatInt(info.Size, 10),
		resolution,
		strconv.FormatFloat(info.FrameRate, 'f', 2, 64),
	})

	streams := newTable(table.Row{"#", "Type", "Codec", "Bit rate"}, 1, 4)
	for _, s := range info.Streams {
		streams.AppendRow(table.Row{s.Index, s.Type, s.Codec, s.BitRate})
	}
	return summary.Render() + "\n" + streams.Render()
}
