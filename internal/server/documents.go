package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/pigcharles06/remote-course-system/internal/llm"
	"github.com/pigcharles06/remote-course-system/internal/pipeline"
	"github.com/pigcharles06/remote-course-system/internal/storage"
)

const (
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

	headerResolved  = "X-Placeholders-Resolved"
	headerRequested = "X-Placeholders-Requested"

	defaultCourseName = "課程申請"
	filenameSuffix    = "_教學計畫表.docx"
	asciiFilename     = "teaching_plan.docx"
)

type generateRequest struct {
	ApplicationID string       `json:"application_id"`
	FormData      llm.FormData `json:"form_data"`
}

type savedDocument struct {
	Filename    string              `json:"filename"`
	DownloadURL string              `json:"download_url"`
	Size        int                 `json:"size"`
	Generation  *storage.Generation `json:"generation"`
	Report      *pipeline.Report    `json:"report"`
}

type documentsAPI struct {
	generator DocumentGenerator
	store     storage.Store
	outputDir string
	logger    *zap.Logger
}

func (api *documentsAPI) register(g *echo.Group) {
	g.POST("/download", api.download)
	g.POST("", api.save)
	g.GET("", api.list)
	g.GET("/:id", api.retrieve)
}

// download generates a document and streams it back as an attachment.
func (api *documentsAPI) download(ctx echo.Context) error {
	req, err := bindGenerateRequest(ctx)
	if err != nil {
		return err
	}

	out, err := api.generate(ctx.Request().Context(), req, "")
	if err != nil {
		return err
	}

	filename := courseName(req.FormData) + filenameSuffix
	h := ctx.Response().Header()
	h.Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`,
		asciiFilename, url.PathEscape(filename)))
	h.Set(headerResolved, strconv.Itoa(out.Report.Resolved))
	h.Set(headerRequested, strconv.Itoa(out.Report.Requested))
	return ctx.Blob(http.StatusOK, mimeDOCX, out.Document)
}

// save generates a document, writes it to the output directory and returns
// where to fetch it.
func (api *documentsAPI) save(ctx echo.Context) error {
	req, err := bindGenerateRequest(ctx)
	if err != nil {
		return err
	}
	if api.outputDir == "" {
		return echo.NewHTTPError(http.StatusNotFound, "document output directory is not configured")
	}

	filename := fmt.Sprintf("%s_%s%s", safeName(courseName(req.FormData)), uuid.NewString()[:8], filenameSuffix)
	path := filepath.Join(api.outputDir, filename)

	out, err := api.generate(ctx.Request().Context(), req, path)
	if err != nil {
		return err
	}

	rec := generationRecord(req.ApplicationID, api.generator.TemplatePath(), out, nil)
	rec.OutputPath = path
	if err := os.MkdirAll(api.outputDir, 0755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	if err := os.WriteFile(path, out.Document, 0644); err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	api.audit(ctx.Request().Context(), rec)

	return ctx.JSON(http.StatusCreated, savedDocument{
		Filename:    filename,
		DownloadURL: "/downloads/" + url.PathEscape(filename),
		Size:        len(out.Document),
		Generation:  rec,
		Report:      out.Report,
	})
}

func (api *documentsAPI) list(ctx echo.Context) error {
	if api.store == nil {
		return errHistoryDisabled
	}
	limit, _ := strconv.Atoi(ctx.QueryParam("limit"))
	gens, err := api.store.ListGenerations(ctx.Request().Context(), limit)
	if err != nil {
		return err
	}
	if gens == nil {
		gens = []*storage.Generation{}
	}
	return ctx.JSON(http.StatusOK, gens)
}

func (api *documentsAPI) retrieve(ctx echo.Context) error {
	if api.store == nil {
		return errHistoryDisabled
	}
	g, err := api.store.GetGeneration(ctx.Request().Context(), ctx.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, g)
}

// generate runs the pipeline; failures are audited when a store is present
// and surface as 500s.
func (api *documentsAPI) generate(ctx context.Context, req *generateRequest, outputPath string) (*pipeline.Output, error) {
	out, err := api.generator.Generate(ctx, req.FormData)
	if err != nil {
		api.logger.Error("document generation failed",
			zap.String("application_id", req.ApplicationID), zap.Error(err))
		rec := generationRecord(req.ApplicationID, api.generator.TemplatePath(), nil, err)
		rec.OutputPath = outputPath
		api.audit(ctx, rec)
		return nil, echo.NewHTTPError(http.StatusInternalServerError,
			fmt.Sprintf("%s: %v", errGenerationFailed, err)).SetInternal(err)
	}
	if outputPath == "" {
		api.audit(ctx, generationRecord(req.ApplicationID, api.generator.TemplatePath(), out, nil))
	}
	return out, nil
}

func (api *documentsAPI) audit(ctx context.Context, rec *storage.Generation) {
	if api.store == nil {
		return
	}
	if err := api.store.SaveGeneration(ctx, rec); err != nil {
		api.logger.Warn("failed to record generation", zap.Error(err))
	}
}

func bindGenerateRequest(ctx echo.Context) (*generateRequest, error) {
	req := new(generateRequest)
	if err := ctx.Bind(req); err != nil {
		return nil, err
	}
	if len(req.FormData) == 0 {
		return nil, errNoFormData
	}
	return req, nil
}

func generationRecord(appID, template string, out *pipeline.Output, err error) *storage.Generation {
	rec := &storage.Generation{
		ApplicationID: appID,
		Template:      template,
		Status:        storage.StatusFailed,
	}
	if err != nil {
		rec.Error = err.Error()
		return rec
	}
	r := out.Report
	rec.SizeBytes = int64(len(out.Document))
	rec.Requested = r.Requested
	rec.Resolved = r.Resolved
	rec.Missing = r.Missing
	rec.Rounds = r.Rounds
	rec.Batches = r.Batches
	rec.Status = storage.StatusComplete
	if !r.Complete() {
		rec.Status = storage.StatusPartial
	}
	return rec
}

func courseName(form llm.FormData) string {
	if name, ok := form["course_name_zh"].(string); ok && strings.TrimSpace(name) != "" {
		return strings.TrimSpace(name)
	}
	return defaultCourseName
}

func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, s)
}
