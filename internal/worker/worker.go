// Package worker implements the LiveKit agent protocol: it registers over a
// websocket, accepts room jobs and runs one translation session per job.
package worker

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof" // pprof handlers, served only when enabled
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	"google.golang.org/protobuf/proto"

	"github.com/Beusted/talk-to-me/internal/config"
	"github.com/Beusted/talk-to-me/internal/job"
	"github.com/Beusted/talk-to-me/internal/logging"
	"github.com/Beusted/talk-to-me/internal/version"
)

// Worker is the LiveKit agent worker.
type Worker struct {
	cfg *config.Config

	conn     *websocket.Conn
	connMu   sync.Mutex
	workerID string

	mu       sync.RWMutex
	running  map[string]*runningJob
	draining bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// runningJob tracks one accepted assignment.
type runningJob struct {
	jobID     string
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewWorker creates a worker from config.
func NewWorker(cfg *config.Config) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		cfg:     cfg,
		running: make(map[string]*runningJob),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start connects to the agent endpoint, registers and serves jobs until a
// shutdown signal arrives. It blocks for the worker's lifetime.
func (w *Worker) Start() error {
	token, err := w.buildWorkerToken()
	if err != nil {
		return fmt.Errorf("build worker token: %w", err)
	}

	wsURL, err := w.buildWSURL()
	if err != nil {
		return fmt.Errorf("build websocket URL: %w", err)
	}

	logging.Info(logging.CategoryWorker, "connecting to LiveKit agent endpoint url=%s", wsURL)

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+token)

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer dialCancel()

	conn, resp, err := dialer.DialContext(dialCtx, wsURL, headers)
	if err != nil {
		return fmt.Errorf("dial websocket: %w", err)
	}
	defer resp.Body.Close()

	w.conn = conn
	logging.Info(logging.CategoryWorker, "connected to LiveKit agent endpoint status=%d", resp.StatusCode)

	if err := w.register(); err != nil {
		return fmt.Errorf("register worker: %w", err)
	}

	w.wg.Add(1)
	go w.messageLoop()

	w.wg.Add(1)
	go w.loadReporter()

	if w.cfg.PProfAddr != "" {
		w.wg.Add(1)
		go w.startPProf()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	select {
	case <-sigChan:
		logging.Info(logging.CategoryWorker, "received shutdown signal, starting drain")
	case <-w.ctx.Done():
		logging.Info(logging.CategoryWorker, "connection lost, starting drain")
	}

	w.mu.Lock()
	w.draining = true
	w.mu.Unlock()

	logging.Info(logging.CategoryWorker, "waiting for active jobs timeout=%v", w.cfg.DrainTimeout)
	done := make(chan struct{})
	go func() {
		w.waitForJobs()
		close(done)
	}()

	select {
	case <-done:
		logging.Info(logging.CategoryWorker, "all jobs completed")
	case <-time.After(w.cfg.DrainTimeout):
		logging.Warning(logging.CategoryWorker, "drain timeout exceeded, cancelling jobs")
		w.cancelAllJobs()
	}

	w.cancel()

	w.connMu.Lock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.connMu.Unlock()

	shutdownDone := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		logging.Info(logging.CategoryWorker, "worker shutdown complete")
	case <-time.After(5 * time.Second):
		logging.Warning(logging.CategoryWorker, "worker shutdown timeout")
	}

	return nil
}

func (w *Worker) buildWorkerToken() (string, error) {
	at := auth.NewAccessToken(w.cfg.LiveKitAPIKey, w.cfg.LiveKitAPISecret)
	at.AddGrant(&auth.VideoGrant{Agent: true})
	return at.ToJWT()
}

func (w *Worker) buildWSURL() (string, error) {
	u, err := url.Parse(w.cfg.LiveKitURL)
	if err != nil {
		return "", err
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}

	u.Path = "/agent"
	return u.String(), nil
}

func (w *Worker) register() error {
	req := &livekit.WorkerMessage{
		Message: &livekit.WorkerMessage_Register{
			Register: &livekit.RegisterWorkerRequest{
				Type:      w.cfg.JobType,
				Version:   version.Version,
				Namespace: &w.cfg.Namespace,
			},
		},
	}
	if w.cfg.AgentName != "" {
		req.GetRegister().AgentName = w.cfg.AgentName
	}

	if err := w.writeMessage(req); err != nil {
		return fmt.Errorf("write register request: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for {
		msgChan := make(chan *livekit.ServerMessage, 1)
		errChan := make(chan error, 1)

		go func() {
			msg, err := w.readMessage()
			if err != nil {
				errChan <- err
				return
			}
			msgChan <- msg
		}()

		select {
		case <-ctx.Done():
			return fmt.Errorf("registration timeout")
		case err := <-errChan:
			return fmt.Errorf("read registration response: %w", err)
		case msg := <-msgChan:
			if msg == nil {
				continue
			}
			if regResp := msg.GetRegister(); regResp != nil {
				w.workerID = regResp.WorkerId
				logging.Info(logging.CategoryWorker, "worker registered workerID=%s", w.workerID)
				return nil
			}
		}
	}
}

func (w *Worker) messageLoop() {
	defer w.wg.Done()

	for {
		msg, err := w.readMessage()
		if err != nil {
			if w.ctx.Err() != nil {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Info(logging.CategoryWorker, "websocket closed, shutting down: %v", err)
			} else {
				logging.Error(logging.CategoryWorker, "websocket read error, shutting down: %v", err)
			}
			w.cancel()
			return
		}

		if err := w.handleMessage(msg); err != nil {
			logging.Error(logging.CategoryWorker, "handle message error: %v", err)
		}
	}
}

func (w *Worker) handleMessage(msg *livekit.ServerMessage) error {
	switch m := msg.Message.(type) {
	case *livekit.ServerMessage_Availability:
		return w.handleAvailability(m.Availability)
	case *livekit.ServerMessage_Assignment:
		return w.handleAssignment(m.Assignment)
	case *livekit.ServerMessage_Termination:
		return w.handleTermination(m.Termination)
	case *livekit.ServerMessage_Pong:
		return nil
	default:
		logging.Debug(logging.CategoryWorker, "unhandled message type=%T", m)
		return nil
	}
}

func (w *Worker) handleAvailability(req *livekit.AvailabilityRequest) error {
	jobID := req.Job.Id
	logging.Info(logging.CategoryWorker, "availability request jobID=%s room=%s", jobID, req.Job.Room.Name)

	w.mu.RLock()
	available := !w.draining && len(w.running) < w.cfg.MaxConcurrentJobs
	w.mu.RUnlock()

	identity := fmt.Sprintf("agent-%s", jobID)
	if len(identity) > 63 {
		identity = identity[:63]
	}
	name := "Translation Agent"
	if w.cfg.AgentName != "" {
		name = w.cfg.AgentName
	}

	resp := &livekit.WorkerMessage{
		Message: &livekit.WorkerMessage_Availability{
			Availability: &livekit.AvailabilityResponse{
				JobId:               jobID,
				Available:           available,
				ParticipantIdentity: identity,
				ParticipantName:     name,
			},
		},
	}

	if err := w.writeMessage(resp); err != nil {
		return fmt.Errorf("write availability response: %w", err)
	}

	if available {
		logging.Info(logging.CategoryWorker, "accepted job jobID=%s", jobID)
	} else {
		logging.Info(logging.CategoryWorker, "rejected job jobID=%s reason=draining or at capacity", jobID)
	}
	return nil
}

func (w *Worker) handleAssignment(assign *livekit.JobAssignment) error {
	jobID := assign.Job.Id
	logging.Info(logging.CategoryWorker, "job assignment jobID=%s room=%s", jobID, assign.Job.Room.Name)

	ctx, cancel := context.WithCancel(w.ctx)
	running := &runningJob{
		jobID:     jobID,
		startedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	w.mu.Lock()
	w.running[jobID] = running
	w.mu.Unlock()

	j := &job.Job{
		JobID:    jobID,
		RoomName: assign.Job.Room.Name,
		Token:    assign.Token,
		URL:      w.cfg.LiveKitURL,
		Config:   w.cfg,
	}

	go func() {
		defer close(running.done)
		defer cancel()

		err := j.Run(ctx)
		if err != nil {
			logging.Error(logging.CategoryJob, "job exited with error jobID=%s: %v", jobID, err)
		} else {
			logging.Info(logging.CategoryJob, "job completed jobID=%s", jobID)
		}

		status := livekit.JobStatus_JS_SUCCESS
		if err != nil {
			status = livekit.JobStatus_JS_FAILED
		}

		update := &livekit.WorkerMessage{
			Message: &livekit.WorkerMessage_UpdateJob{
				UpdateJob: &livekit.UpdateJobStatus{
					JobId:  jobID,
					Status: status,
					Error:  errString(err),
				},
			},
		}
		if err := w.writeMessage(update); err != nil {
			logging.Error(logging.CategoryWorker, "failed to update job status jobID=%s: %v", jobID, err)
		}

		w.mu.Lock()
		delete(w.running, jobID)
		w.mu.Unlock()
	}()

	return nil
}

func (w *Worker) handleTermination(term *livekit.JobTermination) error {
	logging.Info(logging.CategoryWorker, "job termination jobID=%s", term.JobId)

	w.mu.RLock()
	running, ok := w.running[term.JobId]
	w.mu.RUnlock()

	if !ok {
		logging.Warning(logging.CategoryWorker, "termination for unknown job jobID=%s", term.JobId)
		return nil
	}

	running.cancel()
	return nil
}

func (w *Worker) loadReporter() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.LoadUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.reportLoad()
		}
	}
}

func (w *Worker) reportLoad() {
	w.mu.RLock()
	active := len(w.running)
	draining := w.draining
	w.mu.RUnlock()

	load := float32(active) / float32(w.cfg.MaxConcurrentJobs)
	if load > 1.0 {
		load = 1.0
	}

	var status *livekit.WorkerStatus
	if !draining {
		avail := livekit.WorkerStatus_WS_AVAILABLE
		status = &avail
	}

	update := &livekit.WorkerMessage{
		Message: &livekit.WorkerMessage_UpdateWorker{
			UpdateWorker: &livekit.UpdateWorkerStatus{
				Status: status,
				Load:   load,
			},
		},
	}

	if err := w.writeMessage(update); err != nil {
		logging.Debug(logging.CategoryWorker, "skipping load update: %v", err)
	}
}

func (w *Worker) readMessage() (*livekit.ServerMessage, error) {
	w.connMu.Lock()
	conn := w.conn
	w.connMu.Unlock()

	if conn == nil {
		return nil, fmt.Errorf("websocket connection closed")
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		w.connMu.Lock()
		w.conn = nil
		w.connMu.Unlock()
		return nil, err
	}

	msg := &livekit.ServerMessage{}
	if err := proto.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	return msg, nil
}

func (w *Worker) writeMessage(msg *livekit.WorkerMessage) error {
	w.connMu.Lock()
	defer w.connMu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("websocket connection is closed")
	}

	data, err := proto.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return w.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (w *Worker) waitForJobs() {
	for {
		w.mu.RLock()
		jobs := make([]*runningJob, 0, len(w.running))
		for _, r := range w.running {
			jobs = append(jobs, r)
		}
		w.mu.RUnlock()

		if len(jobs) == 0 {
			return
		}
		for _, r := range jobs {
			<-r.done
		}
	}
}

func (w *Worker) cancelAllJobs() {
	w.mu.RLock()
	jobs := make([]*runningJob, 0, len(w.running))
	for _, r := range w.running {
		jobs = append(jobs, r)
	}
	w.mu.RUnlock()

	for _, r := range jobs {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		for _, r := range jobs {
			<-r.done
		}
		close(done)
	}()

	select {
	case <-done:
		logging.Info(logging.CategoryWorker, "all jobs cancelled and exited")
	case <-time.After(2 * time.Second):
		logging.Warning(logging.CategoryWorker, "timeout waiting for jobs to exit after cancellation")
	}
}

func (w *Worker) startPProf() {
	defer w.wg.Done()

	server := &http.Server{Addr: w.cfg.PProfAddr, Handler: http.DefaultServeMux}

	go func() {
		<-w.ctx.Done()
		server.Shutdown(context.Background())
	}()

	logging.Info(logging.CategoryWorker, "starting pprof server addr=%s", w.cfg.PProfAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logging.Error(logging.CategoryWorker, "pprof server error: %v", err)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
