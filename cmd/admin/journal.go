package main

import (
	"encoding/json"
	"flag"
	"path/filepath"
	"time"

	persistlog "voxelterrain/internal/persistence/log"
)

type journalSummary struct {
	Frames       int     `json:"frames"`
	Seconds      float64 `json:"seconds"`
	MeanFrame    string  `json:"mean_frame"`
	WorstFrame   string  `json:"worst_frame"`
	Scheduled    int     `json:"scheduled"`
	Completed    int     `json:"completed"`
	Discarded    int     `json:"discarded"`
	MaxTriangles int     `json:"max_triangles"`
	MaxResident  int     `json:"max_resident_chunks"`
	PageIns      uint64  `json:"page_ins"`
	PageOuts     uint64  `json:"page_outs"`
	Evictions    uint64  `json:"evictions"`
	PagedIn      int     `json:"page_events"`
	Created      int     `json:"created_chunks"`
}

func journalCmd(args []string) {
	fs := flag.NewFlagSet("journal", flag.ExitOnError)
	dir := fs.String("dir", "./data/journal", "journal directory")
	_ = fs.Parse(args)

	s, err := summarizeJournal(*dir)
	if err != nil {
		fail("journal", err)
	}
	printJSON(s)
}

func summarizeJournal(dir string) (journalSummary, error) {
	var s journalSummary
	var total, worst int64
	err := persistlog.ReadJSONL(filepath.Join(dir, "frames"), "frames", func(line []byte) error {
		var e persistlog.FrameEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		s.Frames++
		s.Seconds = e.Time
		total += e.Duration
		worst = max(worst, e.Duration)
		s.Scheduled += e.ScheduledMain + e.ScheduledBackground
		s.Completed += e.Completed
		s.Discarded += e.Discarded
		s.MaxTriangles = max(s.MaxTriangles, e.Triangles)
		s.MaxResident = max(s.MaxResident, e.ResidentChunks)
		// Volume counters are cumulative.
		s.PageIns, s.PageOuts, s.Evictions = e.PageIns, e.PageOuts, e.Evictions
		return nil
	})
	if err != nil {
		return s, err
	}
	err = persistlog.ReadJSONL(filepath.Join(dir, "paging"), "paging", func(line []byte) error {
		var e persistlog.PageEvent
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		s.PagedIn++
		if e.Created {
			s.Created++
		}
		return nil
	})
	if err != nil {
		return s, err
	}
	if s.Frames > 0 {
		s.MeanFrame = (time.Duration(total/int64(s.Frames)) * time.Microsecond).String()
	}
	s.WorstFrame = (time.Duration(worst) * time.Microsecond).String()
	return s, nil
}
