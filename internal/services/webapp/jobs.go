package webapp

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"incoming-inspector/internal/platform/id"
	"incoming-inspector/internal/platform/logging"
	"incoming-inspector/internal/services/dossierexport"
	"incoming-inspector/internal/services/inspectionpdf"
)

// maxFinishedJobs 是内存中保留的已结束任务上限，超出时淘汰最早结束的。
const maxFinishedJobs = 100

type jobManager struct {
	mu   sync.Mutex
	jobs map[string]*exportJob
	wg   sync.WaitGroup

	maxFinished int
}

func newJobManager() *jobManager {
	return &jobManager{jobs: make(map[string]*exportJob), maxFinished: maxFinishedJobs}
}

// exportJob 是“一键导出”（PDF -> ZIP 串行）后台任务。
type exportJob struct {
	JobID        string `json:"job_id"`
	Kind         string `json:"kind"`
	Status       string `json:"status"` // running|success|failed
	InspectionID string `json:"inspection_id"`
	CreatedAt    int64  `json:"created_at"`
	FinishedAt   int64  `json:"finished_at,omitempty"`

	Stage    string       `json:"stage,omitempty"` // pdf|zip|finished
	Progress int          `json:"progress"`
	Logs     []jobLogLine `json:"logs,omitempty"`

	PDF      *inspectionpdf.Result `json:"pdf,omitempty"`
	PDFError string                `json:"pdf_error,omitempty"`

	Zip      *dossierexport.Result `json:"zip,omitempty"`
	ZipError string                `json:"zip_error,omitempty"`

	Error string `json:"error,omitempty"`
}

type jobLogLine struct {
	Time    int64  `json:"time"`
	Message string `json:"message"`
}

func (m *jobManager) put(job *exportJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.JobID] = job
	m.pruneLocked()
}

// pruneLocked 淘汰超出上限的已结束任务；运行中的任务不受影响。
func (m *jobManager) pruneLocked() {
	finished := make([]*exportJob, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j != nil && j.Status != "running" {
			finished = append(finished, j)
		}
	}
	if len(finished) <= m.maxFinished {
		return
	}
	sort.Slice(finished, func(i, k int) bool {
		if finished[i].FinishedAt != finished[k].FinishedAt {
			return finished[i].FinishedAt < finished[k].FinishedAt
		}
		return finished[i].JobID < finished[k].JobID
	})
	for _, j := range finished[:len(finished)-m.maxFinished] {
		delete(m.jobs, j.JobID)
	}
}

// update 在锁内修改 job，避免与 getCopy 并发读产生数据竞争。
func (m *jobManager) update(job *exportJob, fn func(j *exportJob)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(job)
}

func (m *jobManager) getCopy(jobID string) (exportJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok || j == nil {
		return exportJob{}, false
	}
	return copyJob(j), true
}

func (m *jobManager) listCopies() []exportJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]exportJob, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j == nil {
			continue
		}
		out = append(out, copyJob(j))
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].CreatedAt != out[k].CreatedAt {
			return out[i].CreatedAt > out[k].CreatedAt
		}
		return out[i].JobID < out[k].JobID
	})
	return out
}

func copyJob(j *exportJob) exportJob {
	cpy := *j
	if len(cpy.Logs) > 0 {
		tmp := make([]jobLogLine, len(cpy.Logs))
		copy(tmp, cpy.Logs)
		cpy.Logs = tmp
	}
	return cpy
}

func logLine(j *exportJob, msg string) {
	j.Logs = append(j.Logs, jobLogLine{Time: time.Now().Unix(), Message: msg})
}

// startExportJob 登记任务并在后台依次生成 PDF 报告与 ZIP 卷宗。
// ZIP 在 PDF 之后执行，这样卷宗里能带上刚生成的报告。
func (s *Server) startExportJob(inspectionID string, req exportRequest) exportJob {
	now := time.Now().Unix()
	job := &exportJob{
		JobID:        id.New("job"),
		Kind:         "export_all",
		Status:       "running",
		InspectionID: inspectionID,
		CreatedAt:    now,
		Stage:        "pdf",
		Progress:     1,
		Logs:         []jobLogLine{{Time: now, Message: "job created"}},
	}
	s.jobs.put(job)
	resp := copyJob(job)

	s.jobs.wg.Add(1)
	go func() {
		defer s.jobs.wg.Done()
		s.runExportJob(s.baseCtx, job, req)
	}()
	return resp
}

func (s *Server) runExportJob(ctx context.Context, job *exportJob, req exportRequest) {
	log := s.log.With(logging.F("job_id", job.JobID), logging.F("inspection_id", job.InspectionID))

	pdfRes, pdfErr := inspectionpdf.Generate(ctx, s.store, inspectionpdf.Options{
		InspectionID: job.InspectionID,
		OutputDir:    s.cfg.ReportsDir(),
		Operator:     req.Operator,
		Note:         req.Note,
	})
	s.jobs.update(job, func(j *exportJob) {
		j.PDF = pdfRes
		if pdfErr != nil {
			j.PDFError = pdfErr.Error()
			logLine(j, "pdf failed: "+pdfErr.Error())
		} else {
			logLine(j, "pdf finished")
		}
		j.Stage = "zip"
		j.Progress = 50
	})

	zipRes, zipErr := dossierexport.GenerateZip(ctx, s.store, dossierexport.Options{
		InspectionID: job.InspectionID,
		ExportDir:    s.cfg.ExportsDir(),
		CatalogPath:  s.cfg.CatalogPath,
		Operator:     req.Operator,
		Note:         req.Note,
	})

	s.jobs.update(job, func(j *exportJob) {
		j.Zip = zipRes
		if zipErr != nil {
			j.ZipError = zipErr.Error()
			logLine(j, "zip failed: "+zipErr.Error())
		} else {
			logLine(j, "zip finished")
		}
		j.Stage = "finished"
		j.Progress = 100
		j.FinishedAt = time.Now().Unix()

		if pdfErr != nil || zipErr != nil {
			j.Status = "failed"
			j.Error = fmt.Sprintf("pdf=%v; zip=%v", pdfErr, zipErr)
			logLine(j, "job failed")
			return
		}
		j.Status = "success"
		logLine(j, "job success")
	})

	if pdfErr != nil || zipErr != nil {
		log.Warn("export job failed", logging.F("pdf_error", errString(pdfErr)), logging.F("zip_error", errString(zipErr)))
		return
	}
	log.Info("export job finished")
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// handleJobRoutes: GET /api/jobs 与 GET /api/jobs/{id}
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/jobs"), "/")
	if rest == "" {
		writeJSON(w, http.StatusOK, map[string]any{
			"jobs": s.jobs.listCopies(),
		})
		return
	}

	job, ok := s.jobs.getCopy(rest)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("job not found: %s", rest))
		return
	}
	writeJSON(w, http.StatusOK, job)
}
