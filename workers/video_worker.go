package workers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/camden-git/vidfaces/artifacts"
	"github.com/camden-git/vidfaces/pipeline"
	"github.com/camden-git/vidfaces/services"
)

// JobStatus constants
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

var (
	ErrQueueFull  = errors.New("workers: video job queue is full")
	ErrStopped    = errors.New("workers: video processor stopped")
	ErrJobUnknown = errors.New("workers: unknown job")
)

type VideoJob struct {
	ID         string
	SourceName string
	TempPath   string
}

// JobState is the externally visible status of a job.
type JobState struct {
	ID              string `json:"job_id"`
	Status          string `json:"status"`
	SourceName      string `json:"source_name"`
	ResultsPath     string `json:"results_path,omitempty"`
	Error           string `json:"error,omitempty"`
	SamplesDone     int    `json:"samples_done"`
	SamplesExpected int    `json:"samples_expected"`
	CreatedAt       int64  `json:"created_at"`
	UpdatedAt       int64  `json:"updated_at"`
}

// VideoProcessor runs uploaded videos in the background on a fixed pool of
// workers. Uploads are copied to the temp area before they are queued and
// removed once their job finishes, whatever the outcome.
type VideoProcessor struct {
	JobQueue chan VideoJob
	Service  *services.VideoService
	Wg       sync.WaitGroup
	StopChan chan struct{}
	Jobs     map[string]*JobState
	Mutex    sync.Mutex

	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
}

func NewVideoProcessor(svc *services.VideoService, queueSize, numWorkers int) *VideoProcessor {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 16
	}
	ctx, cancel := context.WithCancel(context.Background())
	proc := &VideoProcessor{
		JobQueue: make(chan VideoJob, queueSize),
		Service:  svc,
		StopChan: make(chan struct{}),
		Jobs:     make(map[string]*JobState),
		ctx:      ctx,
		cancel:   cancel,
	}
	proc.Wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go proc.worker(i)
	}
	log.Printf("Started %d video processing worker(s) with queue size %d", numWorkers, queueSize)
	return proc
}

func (vp *VideoProcessor) worker(id int) {
	defer vp.Wg.Done()

	log.Printf("Video worker %d started", id)
	for {
		select {
		case <-vp.StopChan:
			log.Printf("Video worker %d stopping: Stop signal received", id)
			return
		default:
		}

		select {
		case job := <-vp.JobQueue:
			log.Printf("Worker %d: Received video job %s for: %s", id, job.ID, job.SourceName)
			vp.process(job)
		case <-vp.StopChan:
			log.Printf("Video worker %d stopping: Stop signal received", id)
			return
		}
	}
}

func (vp *VideoProcessor) process(job VideoJob) {
	defer vp.release(job)

	vp.update(job.ID, func(s *JobState) { s.Status = StatusProcessing })

	res, err := vp.Service.ProcessFile(vp.ctx, job.SourceName, job.TempPath, services.ProcessOptions{
		JobID: job.ID,
		OnProgress: func(p pipeline.Progress) {
			vp.update(job.ID, func(s *JobState) {
				s.SamplesDone = p.SamplesDone
				s.SamplesExpected = p.SamplesExpected
			})
		},
	})
	if err != nil {
		log.Printf("Worker: ERROR processing video job %s (%s): %v", job.ID, job.SourceName, err)
		vp.update(job.ID, func(s *JobState) {
			s.Status = StatusFailed
			s.Error = err.Error()
		})
		return
	}
	vp.update(job.ID, func(s *JobState) {
		s.Status = StatusDone
		s.ResultsPath = res.ResultsPath
	})
}

func (vp *VideoProcessor) release(job VideoJob) {
	if err := vp.Service.Artifacts().DeleteTemp(job.TempPath); err != nil {
		log.Printf("Worker: ERROR removing temp upload for job %s: %v", job.ID, err)
	}
}

func (vp *VideoProcessor) update(id string, fn func(*JobState)) {
	vp.Mutex.Lock()
	defer vp.Mutex.Unlock()
	if s, ok := vp.Jobs[id]; ok {
		fn(s)
		s.UpdatedAt = time.Now().Unix()
	}
}

// Submit stores the upload and queues it. The returned job id can be polled
// with Status.
func (vp *VideoProcessor) Submit(filename string, data io.Reader) (string, error) {
	if !artifacts.IsAllowedVideo(filename) {
		return "", fmt.Errorf("%w: %q", services.ErrUnsupportedVideo, filename)
	}
	tempPath, err := vp.Service.Artifacts().SaveTemp(filepath.Ext(filename), data)
	if err != nil {
		return "", err
	}
	job := VideoJob{ID: uuid.NewString(), SourceName: filepath.Base(filename), TempPath: tempPath}
	if err := vp.QueueJob(job); err != nil {
		vp.release(job)
		return "", err
	}
	return job.ID, nil
}

// QueueJob registers job and hands it to the pool without blocking.
func (vp *VideoProcessor) QueueJob(job VideoJob) error {
	now := time.Now().Unix()

	// the send stays under the lock so Stop cannot drain the queue between
	// the stopped check and the enqueue
	vp.Mutex.Lock()
	defer vp.Mutex.Unlock()
	if vp.stopped {
		return ErrStopped
	}

	select {
	case vp.JobQueue <- job:
		vp.Jobs[job.ID] = &JobState{
			ID:         job.ID,
			Status:     StatusQueued,
			SourceName: job.SourceName,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		log.Printf("Queued video job %s for: %s", job.ID, job.SourceName)
		return nil
	default:
		log.Printf("WARNING: Video job queue full. Failed to queue: %s", job.SourceName)
		return ErrQueueFull
	}
}

// Status returns a snapshot of a job.
func (vp *VideoProcessor) Status(id string) (JobState, error) {
	vp.Mutex.Lock()
	defer vp.Mutex.Unlock()
	s, ok := vp.Jobs[id]
	if !ok {
		return JobState{}, fmt.Errorf("%w: %s", ErrJobUnknown, id)
	}
	return *s, nil
}

// Stop cancels running jobs, waits for the workers and discards queued uploads.
func (vp *VideoProcessor) Stop() {
	vp.Mutex.Lock()
	if vp.stopped {
		vp.Mutex.Unlock()
		return
	}
	vp.stopped = true
	vp.Mutex.Unlock()

	log.Println("Stopping video processor workers...")
	close(vp.StopChan)
	vp.cancel()
	vp.Wg.Wait()

	for {
		select {
		case job := <-vp.JobQueue:
			vp.release(job)
			vp.update(job.ID, func(s *JobState) {
				s.Status = StatusFailed
				s.Error = ErrStopped.Error()
			})
		default:
			log.Println("All video processor workers stopped")
			return
		}
	}
}
