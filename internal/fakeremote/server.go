// Package fakeremote serves a scripted stand-in for the card processing
// service. Each status call advances the job by one tick so tests and demos
// see the same progression a real backend reports over time.
package fakeremote

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/color"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"character-card-wizard/internal/models"
	"character-card-wizard/internal/telemetry"
)

// Card image dimensions.
const (
	CardWidth  = 512
	CardHeight = 768
)

// GenerationStepID is the step id of the appended card generation task.
const GenerationStepID = "step_final_gen"

// Options script failures.
type Options struct {
	// FailTypes lists task types whose analysis ends in failure.
	FailTypes []string
	FailCard  bool
	// FailReason is the summary of a failed generation task. Empty leaves it blank.
	FailReason string
	OmitImage  bool
	Logger     *slog.Logger
}

// Server holds the in-memory job table.
type Server struct {
	opts   Options
	logger *slog.Logger

	mu   sync.Mutex
	jobs map[string]*job
}

type job struct {
	id        string
	character models.Character
	portrait  []byte
	tasks     []models.SubTask
	finished  bool
	final     *string
}

// New constructs the scripted server.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{opts: opts, logger: logger, jobs: make(map[string]*job)}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Route("/api/file", func(r chi.Router) {
		r.Post("/submit", s.handleSubmit)
		r.Get("/status/{id}", s.handleStatus)
		r.Post("/generate_card", s.handleGenerate)
		r.Post("/update_task_result", s.handleUpdate)
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "request_id", r.Header.Get("X-Request-ID"))
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	var character models.Character
	if err := json.Unmarshal([]byte(r.FormValue("data")), &character); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("parse data: %v", err))
		return
	}
	if character.CharacterName == "" {
		writeError(w, http.StatusInternalServerError, "character_name is required")
		return
	}

	j := &job{id: uuid.NewString(), character: character}
	var files []*multipart.FileHeader
	if r.MultipartForm != nil {
		files = r.MultipartForm.File["files"]
	}

	uploaded := 0
	for i := range j.character.Reference {
		ref := &j.character.Reference[i]
		switch {
		case ref.ResourceType.CarriesFile() && ref.ResourceURL == models.PendingUploadURL:
			if uploaded >= len(files) {
				continue
			}
			fh := files[uploaded]
			uploaded++
			name := fh.Filename
			ref.FileName = &name
			if ref.ResourceType == models.ResourceImage && j.portrait == nil {
				j.portrait = readPart(fh)
			}
		case ref.ResourceType == models.ResourceURL:
			url := ref.ResourceURL
			ref.FileName = &url
		}
	}
	j.tasks = planTasks(j.character)

	s.mu.Lock()
	s.jobs[j.id] = j
	s.mu.Unlock()

	s.logger.Info("job submitted", "process_id", j.id, "tasks", len(j.tasks), "files", uploaded)
	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "success",
		"process_id": j.id,
		"message":    "Task submitted, processing started.",
	})
}

func readPart(fh *multipart.FileHeader) []byte {
	f, err := fh.Open()
	if err != nil {
		return nil
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return nil
	}
	return b
}

func planTasks(c models.Character) []models.SubTask {
	tasks := make([]models.SubTask, 0, len(c.Reference))
	for i, ref := range c.Reference {
		t := models.SubTask{StepID: fmt.Sprintf("step_ref_%d", i), Status: models.StatusPending}
		switch ref.ResourceType {
		case models.ResourceImage:
			t.Type = models.TaskTypeImageAnalysis
			t.Title = "Image analysis: " + nameOr(ref.FileName, "Image")
		case models.ResourceFile:
			t.Type = models.TaskTypeDocAnalysis
			t.Title = "Document processing: " + nameOr(ref.FileName, "Document")
		case models.ResourceURL:
			t.Type = models.TaskTypeLinkCrawl
			t.Title = "Link reading: " + ref.ResourceURL
		default:
			t.Type = models.TaskTypeSearch
			t.Title = "Web search: " + c.CharacterName
		}
		tasks = append(tasks, t)
	}
	return tasks
}

func nameOr(name *string, def string) string {
	if name == nil || *name == "" {
		return def
	}
	return *name
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	j, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "Process ID not found")
		return
	}
	s.advance(j)
	snap := j.snapshot()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, snap)
}

// advance moves the first unfinished task one state forward.
func (s *Server) advance(j *job) {
	for i := range j.tasks {
		t := &j.tasks[i]
		if t.Status.Terminal() {
			continue
		}
		if t.Type == models.TaskTypeCardGeneration {
			s.finishGeneration(j, t)
			break
		}
		if t.Status == models.StatusPending {
			t.Status = models.StatusProcessing
			break
		}
		if s.failing(t.Type) {
			t.Status = models.StatusFailed
			t.ResultSummary = "Error: scripted failure for " + t.Type
		} else {
			t.Status = models.StatusSuccess
			t.ResultSummary = fmt.Sprintf("Findings from %s for %s.", t.Title, j.character.CharacterName)
		}
		break
	}
	for _, t := range j.tasks {
		if !t.Status.Terminal() {
			return
		}
	}
	j.finished = true
}

func (s *Server) failing(taskType string) bool {
	for _, ft := range s.opts.FailTypes {
		if ft == taskType {
			return true
		}
	}
	return false
}

func (s *Server) finishGeneration(j *job, t *models.SubTask) {
	if s.opts.FailCard {
		t.Status = models.StatusFailed
		t.ResultSummary = s.opts.FailReason
		s.logger.Info("generation failed", "process_id", j.id)
		return
	}
	final, err := s.buildFinal(j)
	if err != nil {
		t.Status = models.StatusFailed
		t.ResultSummary = fmt.Sprintf("Generation failed: %v", err)
		s.logger.Error("build final artifact", "process_id", j.id, "err", err)
		return
	}
	t.Status = models.StatusSuccess
	t.ResultSummary = "Character card generated"
	j.final = &final
	s.logger.Info("generation succeeded", "process_id", j.id)
}

type card struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Personality string `json:"personality"`
	Scenario    string `json:"scenario"`
	FirstMes    string `json:"first_mes"`
	MesExample  string `json:"mes_example"`
}

func (s *Server) buildFinal(j *job) (string, error) {
	var materials []string
	for _, t := range j.tasks {
		if t.Type != models.TaskTypeCardGeneration && t.Status == models.StatusSuccess && t.ResultSummary != "" {
			materials = append(materials, t.ResultSummary)
		}
	}
	c := card{
		Name:        j.character.CharacterName,
		Description: strings.Join(materials, "\n"),
		Scenario:    j.character.SourceWorkName,
		Personality: j.character.UserRequirement,
	}
	cardJSON, err := json.MarshalIndent(c, "", "    ")
	if err != nil {
		return "", fmt.Errorf("marshal card: %w", err)
	}

	res := models.FinalResult{JSON: string(cardJSON)}
	if !s.opts.OmitImage {
		png, err := renderCard(j.portrait)
		if err != nil {
			return "", err
		}
		res.Image = base64.StdEncoding.EncodeToString(png)
	}
	out, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("marshal final result: %w", err)
	}
	return string(out), nil
}

// renderCard resizes the uploaded portrait to the card size, or paints a blank card.
func renderCard(portrait []byte) ([]byte, error) {
	img := imaging.New(CardWidth, CardHeight, color.White)
	if len(portrait) > 0 {
		if src, err := imaging.Decode(bytes.NewReader(portrait)); err == nil {
			img = imaging.Resize(src, CardWidth, CardHeight, imaging.Lanczos)
		}
	}
	buf := &bytes.Buffer{}
	if err := imaging.Encode(buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode card image: %w", err)
	}
	return buf.Bytes(), nil
}

func (j *job) snapshot() models.StatusSnapshot {
	return models.StatusSnapshot{
		ProcessID:  j.id,
		SubTasks:   append([]models.SubTask(nil), j.tasks...),
		IsFinished: j.finished,
		FinalJSON:  j.final,
	}
}

type generateRequest struct {
	ProcessID string `json:"process_id"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[req.ProcessID]
	if !ok {
		writeError(w, http.StatusNotFound, "Process ID not found")
		return
	}

	gen := models.SubTask{
		StepID: GenerationStepID,
		Title:  "Building the character card from the reviewed material",
		Type:   models.TaskTypeCardGeneration,
		Status: models.StatusProcessing,
	}
	replaced := false
	for i := range j.tasks {
		if j.tasks[i].StepID == GenerationStepID {
			j.tasks[i] = gen
			replaced = true
		}
	}
	if !replaced {
		j.tasks = append(j.tasks, gen)
	}
	j.finished = false
	j.final = nil

	s.logger.Info("generation started", "process_id", j.id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Generation started"})
}

type updateRequest struct {
	ProcessID  string `json:"process_id"`
	StepID     string `json:"step_id"`
	NewSummary string `json:"new_summary"`
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[req.ProcessID]; ok {
		for i := range j.tasks {
			if j.tasks[i].StepID == req.StepID {
				j.tasks[i].ResultSummary = req.NewSummary
				s.logger.Info("task result updated", "process_id", j.id, "step_id", req.StepID, "len", len(req.NewSummary))
				writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
				return
			}
		}
	}
	writeError(w, http.StatusBadRequest, "Update failed, task not found.")
}

// Summary returns the stored summary of one task, for assertions.
func (s *Server) Summary(processID, stepID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[processID]
	if !ok {
		return "", false
	}
	for _, t := range j.tasks {
		if t.StepID == stepID {
			return t.ResultSummary, true
		}
	}
	return "", false
}

// Jobs returns the number of submitted jobs.
func (s *Server) Jobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func writeError(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
