package batch

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/streamgov/streamgov-backend/internal/apperr"
	"github.com/streamgov/streamgov-backend/internal/models"
)

// DefaultMaxUploadBytes is the per-file size cap: exactly this many bytes is
// accepted, one more is not.
const DefaultMaxUploadBytes = 10 << 20

// schemaTypeByExt maps accepted schema file extensions to registry types.
var schemaTypeByExt = map[string]models.SchemaType{
	".avsc":  models.SchemaAvro,
	".json":  models.SchemaJSON,
	".proto": models.SchemaProtobuf,
}

// SchemaTypeForFile maps a file name to its registry schema type by
// extension. ZIP archives and unknown extensions report false.
func SchemaTypeForFile(name string) (models.SchemaType, bool) {
	t, ok := schemaTypeByExt[strings.ToLower(path.Ext(name))]
	return t, ok
}

// UploadFile is one file of a multipart schema upload.
type UploadFile struct {
	Name string
	Data []byte
}

// FromUploads turns uploaded schema files into a validated SchemaBatch.
// Plain files become one spec each, subject = file stem. ZIP archives are
// stored as bundles: every schema file inside becomes a spec with subject
// `bundle.{stem}`. All constraint failures are collected and reported in one
// bulleted message.
func FromUploads(changeID string, env models.Environment, owner string, compat models.CompatibilityMode, files []UploadFile, maxBytes int64) (models.SchemaBatch, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if len(files) == 0 {
		return models.SchemaBatch{}, apperr.Invariant("upload contains no files")
	}

	var specs []models.SchemaSpec
	var problems []string
	for _, f := range files {
		fileSpecs, errs := specsFromFile(f, owner, compat, maxBytes)
		specs = append(specs, fileSpecs...)
		problems = append(problems, errs...)
	}
	if len(problems) > 0 {
		return models.SchemaBatch{}, apperr.Invariant("upload rejected:%s", bulleted(problems))
	}
	return models.NewSchemaBatch(changeID, env, specs)
}

func specsFromFile(f UploadFile, owner string, compat models.CompatibilityMode, maxBytes int64) ([]models.SchemaSpec, []string) {
	ext := strings.ToLower(path.Ext(f.Name))
	if ext == ".zip" {
		return specsFromArchive(f, owner, compat, maxBytes)
	}
	if err := checkSchemaFile(f.Name, ext, f.Data, maxBytes); err != "" {
		return nil, []string{err}
	}
	return []models.SchemaSpec{newUploadSpec(stem(f.Name), ext, f.Data, owner, compat)}, nil
}

func specsFromArchive(f UploadFile, owner string, compat models.CompatibilityMode, maxBytes int64) ([]models.SchemaSpec, []string) {
	if int64(len(f.Data)) > maxBytes {
		return nil, []string{fmt.Sprintf("%s: exceeds the %d byte limit", f.Name, maxBytes)}
	}
	reader, err := zip.NewReader(bytes.NewReader(f.Data), int64(len(f.Data)))
	if err != nil {
		return nil, []string{fmt.Sprintf("%s: not a readable ZIP archive: %v", f.Name, err)}
	}

	var specs []models.SchemaSpec
	var problems []string
	for _, member := range reader.File {
		if member.FileInfo().IsDir() {
			continue
		}
		ext := strings.ToLower(path.Ext(member.Name))
		if _, ok := schemaTypeByExt[ext]; !ok {
			continue
		}
		data, err := readZipMember(member, maxBytes)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s!%s: %v", f.Name, member.Name, err))
			continue
		}
		if msg := checkSchemaFile(f.Name+"!"+member.Name, ext, data, maxBytes); msg != "" {
			problems = append(problems, msg)
			continue
		}
		specs = append(specs, newUploadSpec("bundle."+stem(member.Name), ext, data, owner, compat))
	}
	if len(specs) == 0 && len(problems) == 0 {
		problems = append(problems, fmt.Sprintf("%s: archive contains no schema files", f.Name))
	}
	return specs, problems
}

func readZipMember(member *zip.File, maxBytes int64) ([]byte, error) {
	rc, err := member.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxBytes+1))
	if err != nil {
		return nil, err
	}
	return data, nil
}

// checkSchemaFile enforces the per-file constraints; returns "" when clean.
func checkSchemaFile(name, ext string, data []byte, maxBytes int64) string {
	if _, ok := schemaTypeByExt[ext]; !ok {
		return fmt.Sprintf("%s: extension %q is not accepted (.avsc, .json, .proto, .zip)", name, ext)
	}
	if len(data) == 0 {
		return fmt.Sprintf("%s: file is empty", name)
	}
	if int64(len(data)) > maxBytes {
		return fmt.Sprintf("%s: exceeds the %d byte limit", name, maxBytes)
	}
	if ext == ".avsc" || ext == ".json" {
		if !json.Valid(data) {
			return fmt.Sprintf("%s: not valid JSON", name)
		}
	}
	return ""
}

func newUploadSpec(subject, ext string, data []byte, owner string, compat models.CompatibilityMode) models.SchemaSpec {
	spec := models.SchemaSpec{
		Subject:       subject,
		SchemaType:    schemaTypeByExt[ext],
		Compatibility: compat,
		Schema:        string(data),
	}
	if owner != "" {
		spec.Metadata = &models.TopicMetadata{Owners: []string{owner}}
	}
	return spec
}

func stem(name string) string {
	base := path.Base(name)
	return strings.TrimSuffix(base, path.Ext(base))
}

func bulleted(problems []string) string {
	var b strings.Builder
	for _, p := range problems {
		b.WriteString("\n- ")
		b.WriteString(p)
	}
	return b.String()
}
