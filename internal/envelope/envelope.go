// Пакет envelope — сборка архивируемого конверта отправки.
// Конверт — zip-архив из исходного PDF и манифеста metadata.xml,
// собирается в изолированной scratch-директории под WorkDir.
// Директория принадлежит ровно одной отправке и удаляется при Close —
// вызывающий код обязан вызвать Close на любом пути выхода.
package envelope

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/arturkryukov/docflow/submission-module/internal/domain/model"
)

// Builder — сборщик конвертов.
type Builder struct {
	// workDir — корневая директория scratch-областей (SM_WORK_DIR)
	workDir string
}

// NewBuilder создаёт сборщик конвертов. Проверяет и создаёт
// рабочую директорию, если она не существует.
func NewBuilder(workDir string) (*Builder, error) {
	if err := os.MkdirAll(workDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать рабочую директорию %s: %w", workDir, err)
	}
	return &Builder{workDir: workDir}, nil
}

// Package — собранный конверт в scratch-директории.
type Package struct {
	// Path — абсолютный путь к zip-архиву
	Path string
	// Size — размер архива в байтах
	Size int64

	dir string
}

// Open открывает архив для чтения. Вызывающий код обязан закрыть файл.
func (p *Package) Open() (*os.File, error) {
	f, err := os.Open(p.Path)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия конверта %s: %w", p.Path, err)
	}
	return f, nil
}

// Close удаляет scratch-директорию конверта со всем содержимым.
// Повторный вызов — no-op.
func (p *Package) Close() error {
	if p.dir == "" {
		return nil
	}
	dir := p.dir
	p.dir = ""
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("ошибка удаления scratch-директории %s: %w", dir, err)
	}
	return nil
}

// manifest — XML-представление метаданных отправки (metadata.xml).
type manifest struct {
	XMLName            xml.Name `xml:"metadata"`
	SubmissionID       string   `xml:"submissionId"`
	Source             string   `xml:"source"`
	TimeOfReceipt      string   `xml:"timeOfReceipt"`
	FormID             string   `xml:"formId"`
	CustomerID         string   `xml:"customerId"`
	ClassificationType string   `xml:"classificationType"`
	BusinessArea       string   `xml:"businessArea"`
}

// Build собирает конверт отправки: пишет PDF и metadata.xml
// в свежую scratch-директорию и упаковывает их в <id>.zip.
// При любой ошибке scratch-директория удаляется сразу.
func (b *Builder) Build(id string, form io.Reader, meta model.SubmissionMetadata) (*Package, error) {
	dir, err := os.MkdirTemp(b.workDir, "submission-*")
	if err != nil {
		return nil, fmt.Errorf("ошибка создания scratch-директории: %w", err)
	}

	pkg, err := b.assemble(dir, id, form, meta)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	return pkg, nil
}

// assemble выполняет сборку внутри уже созданной scratch-директории.
func (b *Builder) assemble(dir, id string, form io.Reader, meta model.SubmissionMetadata) (*Package, error) {
	zipPath := filepath.Join(dir, id+".zip")

	zf, err := os.Create(zipPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания архива: %w", err)
	}
	defer zf.Close()

	zw := zip.NewWriter(zf)

	// 1. Исходный документ
	formEntry, err := zw.Create("form.pdf")
	if err != nil {
		return nil, fmt.Errorf("ошибка создания записи form.pdf: %w", err)
	}
	if _, err := io.Copy(formEntry, form); err != nil {
		return nil, fmt.Errorf("ошибка записи form.pdf: %w", err)
	}

	// 2. Манифест метаданных
	metaEntry, err := zw.Create("metadata.xml")
	if err != nil {
		return nil, fmt.Errorf("ошибка создания записи metadata.xml: %w", err)
	}
	if err := writeManifest(metaEntry, id, meta); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("ошибка завершения архива: %w", err)
	}

	// fsync для гарантии записи на диск
	if err := zf.Sync(); err != nil {
		return nil, fmt.Errorf("ошибка fsync архива: %w", err)
	}

	info, err := zf.Stat()
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения размера архива: %w", err)
	}

	return &Package{
		Path: zipPath,
		Size: info.Size(),
		dir:  dir,
	}, nil
}

// writeManifest сериализует метаданные в metadata.xml.
func writeManifest(w io.Writer, id string, meta model.SubmissionMetadata) error {
	timeOfReceipt := meta.TimeOfReceipt
	if timeOfReceipt.IsZero() {
		timeOfReceipt = time.Now().UTC()
	}

	m := manifest{
		SubmissionID:       id,
		Source:             meta.Source,
		TimeOfReceipt:      timeOfReceipt.UTC().Format(time.RFC3339),
		FormID:             meta.FormID,
		CustomerID:         meta.CustomerID,
		ClassificationType: meta.ClassificationType,
		BusinessArea:       meta.BusinessArea,
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("ошибка записи заголовка манифеста: %w", err)
	}

	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("ошибка сериализации манифеста: %w", err)
	}
	return nil
}
