package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	_ "modernc.org/sqlite"

	"voxelterrain/internal/encoding"
	"voxelterrain/internal/persistence/codec"
)

func openDB(fs *flag.FlagSet, args []string) *sql.DB {
	dbPath := fs.String("db", "./data/chunks.db", "sqlite chunk database")
	_ = fs.Parse(args)
	if _, err := os.Stat(*dbPath); err != nil {
		fail("open", err)
	}
	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		fail("open", err)
	}
	return db
}

type chunkRow struct {
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Z         int    `json:"z"`
	Side      int    `json:"side"`
	Codec     string `json:"codec"`
	Bytes     int    `json:"bytes"`
	Size      string `json:"size"`
	UpdatedAt string `json:"updated_at"`
}

func chunksCmd(args []string) {
	fs := flag.NewFlagSet("chunks", flag.ExitOnError)
	limit := fs.Int("limit", 20, "result limit")
	db := openDB(fs, args)
	defer db.Close()

	if *limit <= 0 {
		*limit = 20
	}
	rows, err := db.Query(`SELECT x,y,z,side,codec,length(data),updated_at FROM chunks ORDER BY updated_at DESC, x, y, z LIMIT ?`, *limit)
	if err != nil {
		fail("query", err)
	}
	defer rows.Close()
	for rows.Next() {
		var r chunkRow
		if err := rows.Scan(&r.X, &r.Y, &r.Z, &r.Side, &r.Codec, &r.Bytes, &r.UpdatedAt); err != nil {
			fail("scan", err)
		}
		r.Size = humanize.IBytes(uint64(r.Bytes))
		printJSON(r)
	}
	if err := rows.Err(); err != nil {
		fail("rows", err)
	}
}

func statsCmd(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	db := openDB(fs, args)
	defer db.Close()

	var out struct {
		Voxel      string         `json:"voxel"`
		Chunks     int            `json:"chunks"`
		Bytes      int64          `json:"bytes"`
		Size       string         `json:"size"`
		PerCodec   map[string]int `json:"per_codec"`
		Ratio      string         `json:"ratio,omitempty"`
		LastUpdate string         `json:"last_update,omitempty"`
	}
	out.PerCodec = map[string]int{}
	if err := db.QueryRow(`SELECT value FROM meta WHERE key='voxel'`).Scan(&out.Voxel); err != nil && !errors.Is(err, sql.ErrNoRows) {
		fail("meta", err)
	}
	var last sql.NullString
	var raw int64
	if err := db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(length(data)),0), COALESCE(SUM(side*side*side),0), MAX(updated_at) FROM chunks`).
		Scan(&out.Chunks, &out.Bytes, &raw, &last); err != nil {
		fail("query", err)
	}
	out.Size = humanize.IBytes(uint64(out.Bytes))
	out.LastUpdate = last.String
	if out.Bytes > 0 {
		// Dense size at four bytes per voxel word.
		out.Ratio = fmt.Sprintf("%.1fx", float64(raw*4)/float64(out.Bytes))
	}

	rows, err := db.Query(`SELECT codec, COUNT(*) FROM chunks GROUP BY codec`)
	if err != nil {
		fail("query", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			fail("scan", err)
		}
		out.PerCodec[name] = n
	}
	if err := rows.Err(); err != nil {
		fail("rows", err)
	}
	printJSON(out)
}

func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	at := fs.String("at", "", "chunk lower corner: x,y,z (required)")
	db := openDB(fs, args)
	defer db.Close()

	if strings.TrimSpace(*at) == "" {
		fmt.Fprintln(os.Stderr, "missing -at")
		os.Exit(2)
	}
	lower, err := parseVec3(*at)
	if err != nil {
		fail("parse -at", err)
	}

	var side int
	var name string
	var blob []byte
	err = db.QueryRow(`SELECT side, codec, data FROM chunks WHERE x=? AND y=? AND z=? ORDER BY side LIMIT 1`,
		lower[0], lower[1], lower[2]).Scan(&side, &name, &blob)
	if err != nil {
		fail("query", err)
	}
	h, err := decodeHistogram(name, blob, side)
	if err != nil {
		fail("decode", err)
	}
	h.Lower = lower
	printJSON(h)
}

type histogram struct {
	Lower     [3]int         `json:"lower"`
	Side      int            `json:"side"`
	Codec     string         `json:"codec"`
	Runs      int            `json:"runs"`
	Materials map[uint32]int `json:"materials"`
}

// decodeHistogram counts voxels per material id. Words carry the material in
// the high bits for the material_density flavour.
func decodeHistogram(name string, blob []byte, side int) (histogram, error) {
	wordsName, compName, ok := strings.Cut(name, "+")
	if !ok {
		return histogram{}, fmt.Errorf("bad codec name %q", name)
	}
	comp, err := codec.NewCompressor(compName)
	if err != nil {
		return histogram{}, err
	}
	raw, err := comp.Decompress(blob)
	if err != nil {
		return histogram{}, err
	}
	words := make([]uint32, side*side*side)
	if err := encoding.DecodeRLEInto(raw, words); err != nil {
		return histogram{}, err
	}

	shift := 0
	switch wordsName {
	case codec.MaterialWords.Name:
	case codec.MaterialDensityWords.Name:
		shift = 8
	default:
		return histogram{}, fmt.Errorf("unknown voxel words %q", wordsName)
	}
	h := histogram{Side: side, Codec: name, Runs: encoding.Runs(words), Materials: map[uint32]int{}}
	for _, w := range words {
		h.Materials[w>>shift]++
	}
	return h, nil
}

func parseVec3(s string) ([3]int, error) {
	var out [3]int
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return out, fmt.Errorf("want x,y,z, got %q", s)
	}
	for i, p := range parts {
		if _, err := fmt.Sscanf(strings.TrimSpace(p), "%d", &out[i]); err != nil {
			return out, fmt.Errorf("bad component %q: %w", p, err)
		}
	}
	return out, nil
}
