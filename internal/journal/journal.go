// Package journal keeps an append-only record of what the client did:
// every action lifecycle step and every decoded contract event, as
// compressed JSON lines rotated hourly.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"

	"github.com/Piyush79432/Treasure-hunt/internal/chain"
	"github.com/Piyush79432/Treasure-hunt/internal/game"
)

const (
	TypeAction = "action"
	TypeEvent  = "event"
)

// Entry is one journal line. Exactly one of Action and Event is set.
type Entry struct {
	Type   string             `json:"type"`
	Time   time.Time          `json:"time"`
	Action *game.ActionRecord `json:"action,omitempty"`
	Event  *chain.Event       `json:"event,omitempty"`
}

// Journal implements game.Recorder and game.EventRecorder. Write failures
// are logged; recording never blocks gameplay on disk errors.
type Journal struct {
	w   *Writer
	log logrus.FieldLogger
	now func() time.Time
}

func Open(dir string, log logrus.FieldLogger) (*Journal, error) {
	if dir == "" {
		return nil, fmt.Errorf("journal: empty dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Journal{
		w:   NewWriter(dir, "journal"),
		log: log.WithField("component", "journal"),
		now: time.Now,
	}, nil
}

func (j *Journal) RecordAction(rec game.ActionRecord) {
	t := rec.Time
	if t.IsZero() {
		t = j.now().UTC()
	}
	j.write(Entry{Type: TypeAction, Time: t, Action: &rec})
}

func (j *Journal) RecordEvent(ev chain.Event) {
	j.write(Entry{Type: TypeEvent, Time: j.now().UTC(), Event: &ev})
}

func (j *Journal) write(e Entry) {
	if err := j.w.Write(e); err != nil {
		j.log.WithError(err).WithField("type", e.Type).Warn("journal write failed")
	}
}

func (j *Journal) Close() error { return j.w.Close() }

// Files lists journal files in dir, oldest first.
func Files(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "journal-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// ReadFile decodes every entry of one journal file. A file still being
// written may end in a partial frame; entries before it are returned.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []Entry
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return out, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return out, err
	}
	return out, nil
}

// ReadAll decodes every journal file in dir in order.
func ReadAll(dir string) ([]Entry, error) {
	files, err := Files(dir)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, p := range files {
		es, err := ReadFile(p)
		out = append(out, es...)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}
