// Package docstore reads and writes the flat-file data tree:
//
//	<root>/<domain>/questions.yaml
//	<root>/<domain>/<jurisdiction>/statute.txt
//	<root>/<domain>/<jurisdiction>/guidance.txt
//	<root>/<domain>/<jurisdiction>/analysis.json
//	<root>/<domain>/<jurisdiction>/versions/analysis-<modtime>.json
//
// A domain is any directory under the root carrying a questions.yaml; a
// jurisdiction is any directory under a domain. The current analysis
// record is analysis.json; superseded records are archived under
// versions/ and never deleted.
package docstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/JGarfunkel/ordinizer-sub000/internal/model"
)

const (
	catalogFile = "questions.yaml"
	recordFile  = "analysis.json"
	versionsDir = "versions"

	// archiveStamp formats the superseded record's own modification time
	// into the archive filename. Nanosecond precision keeps rapid
	// successive overwrites from colliding.
	archiveStamp = "20060102-150405.000000000"
)

// Document is a source text plus the modification time used for
// freshness checks.
type Document struct {
	Text    string
	ModTime time.Time
	Type    model.DocumentType
}

// Store is the flat-file document and record store.
type Store struct {
	root string
}

func New(root string) *Store {
	return &Store{root: root}
}

// Domains lists domain directories (those carrying a questions.yaml),
// sorted by name.
func (s *Store) Domains() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, eris.Wrapf(err, "docstore: read data root %s", s.root)
	}

	var domains []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, e.Name(), catalogFile)); err == nil {
			domains = append(domains, e.Name())
		}
	}
	sort.Strings(domains)
	return domains, nil
}

// Jurisdictions lists jurisdiction directories under a domain, sorted.
func (s *Store) Jurisdictions(domainID string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, domainID))
	if err != nil {
		return nil, eris.Wrapf(err, "docstore: read domain %s", domainID)
	}

	var jurisdictions []string
	for _, e := range entries {
		if e.IsDir() {
			jurisdictions = append(jurisdictions, e.Name())
		}
	}
	sort.Strings(jurisdictions)
	return jurisdictions, nil
}

// Catalog loads a domain's question catalog, sorted by display order.
func (s *Store) Catalog(domainID string) ([]model.Question, error) {
	path := filepath.Join(s.root, domainID, catalogFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "docstore: read catalog %s", path)
	}

	var wrapper struct {
		Questions []model.Question `yaml:"questions"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrapf(err, "docstore: parse catalog %s", path)
	}
	if len(wrapper.Questions) == 0 {
		return nil, eris.Errorf("docstore: catalog %s has no questions", path)
	}

	model.SortByOrder(wrapper.Questions)
	return wrapper.Questions, nil
}

// Document reads one source document and its modification time. Returns
// nil when the file does not exist.
func (s *Store) Document(domainID, jurisdictionID string, docType model.DocumentType) (*Document, error) {
	path := filepath.Join(s.root, domainID, jurisdictionID, string(docType)+".txt")
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "docstore: stat document %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "docstore: read document %s", path)
	}
	return &Document{Text: string(data), ModTime: info.ModTime(), Type: docType}, nil
}

// FindDocument returns the jurisdiction's source document, preferring the
// statute over guidance. Returns nil when neither exists.
func (s *Store) FindDocument(domainID, jurisdictionID string) (*Document, error) {
	for _, t := range []model.DocumentType{model.DocumentStatute, model.DocumentGuidance} {
		doc, err := s.Document(domainID, jurisdictionID, t)
		if err != nil || doc != nil {
			return doc, err
		}
	}
	return nil, nil
}

// Record loads the current analysis record. Returns (nil, nil) when no
// record exists; a parse failure is an error so callers can log it
// before treating the record as absent.
func (s *Store) Record(domainID, jurisdictionID string) (*model.AnalysisRecord, error) {
	path := s.recordPath(domainID, jurisdictionID)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "docstore: read record %s", path)
	}

	var rec model.AnalysisRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, eris.Wrapf(err, "docstore: parse record %s", path)
	}
	return &rec, nil
}

// RecordModTime returns the current record's modification time, or the
// zero time when no record exists.
func (s *Store) RecordModTime(domainID, jurisdictionID string) (time.Time, error) {
	info, err := os.Stat(s.recordPath(domainID, jurisdictionID))
	if os.IsNotExist(err) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "docstore: stat record %s/%s", domainID, jurisdictionID)
	}
	return info.ModTime(), nil
}

// WriteRecord persists the record as the current analysis.json, archiving
// any existing record first. Overwrite without a snapshot is not
// possible through this path.
func (s *Store) WriteRecord(domainID, jurisdictionID string, rec *model.AnalysisRecord) error {
	if _, err := s.Snapshot(domainID, jurisdictionID); err != nil {
		return err
	}

	path := s.recordPath(domainID, jurisdictionID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "docstore: create jurisdiction dir for %s/%s", domainID, jurisdictionID)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return eris.Wrap(err, "docstore: marshal record")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "docstore: write record %s", path)
	}
	return nil
}

// Snapshot archives the current record to versions/, stamped with the
// record file's own modification time rather than the wall clock, so the
// same pre-overwrite state always maps to the same archive name. Returns
// the archive path, or "" when there is no current record to archive.
func (s *Store) Snapshot(domainID, jurisdictionID string) (string, error) {
	path := s.recordPath(domainID, jurisdictionID)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "docstore: stat record %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "docstore: read record %s", path)
	}

	dir := filepath.Join(filepath.Dir(path), versionsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "docstore: create versions dir %s", dir)
	}

	archive := filepath.Join(dir, "analysis-"+info.ModTime().UTC().Format(archiveStamp)+".json")
	if err := os.WriteFile(archive, data, 0o644); err != nil {
		return "", eris.Wrapf(err, "docstore: write archive %s", archive)
	}
	return archive, nil
}

func (s *Store) recordPath(domainID, jurisdictionID string) string {
	return filepath.Join(s.root, domainID, jurisdictionID, recordFile)
}
