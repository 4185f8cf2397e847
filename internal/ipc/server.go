package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"log/slog"

	"lectern/internal/daemon"
	"lectern/internal/ingest"
	"lectern/internal/logging"
	"lectern/internal/pipeline"
)

// defaultListLimit caps review-surface listings when the caller does not
// provide one.
const defaultListLimit = 50

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Lectern", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String("impact", "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String("impact", "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun lectern daemon stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String("component", "ipc"))
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.log().Debug("daemon start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.log().Info("daemon started via IPC",
		logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.log().Info("daemon stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status, err := s.daemon.Status(s.ctx)
	if err != nil {
		return err
	}
	resp.Running = status.Running
	resp.ShuttingDown = status.ShuttingDown
	resp.PID = status.PID
	resp.DatabasePath = status.DatabasePath
	resp.LockPath = status.LockFilePath
	resp.LogPath = s.daemon.LogPath()
	resp.PollInterval = status.PollInterval.String()
	resp.InboxWatching = status.InboxWatching
	resp.Pipelines = FromSummary(status.Pipelines)
	resp.PendingMappings = status.PendingMappings
	resp.PendingReview = status.PendingReview
	resp.Checkpoint = FromCheckpoint(status.Checkpoint)
	resp.LastError = status.LastError
	return nil
}

func (s *service) PipelineList(req PipelineListRequest, resp *PipelineListResponse) error {
	statuses := make([]pipeline.Status, 0, len(req.Statuses))
	for _, status := range req.Statuses {
		parsed, ok := pipeline.ParseStatus(status)
		if !ok {
			continue
		}
		statuses = append(statuses, parsed)
	}
	pipelines, err := s.daemon.ListPipelines(s.ctx, statuses...)
	if err != nil {
		return err
	}
	resp.Pipelines = FromPipelines(pipelines)
	return nil
}

func (s *service) PipelineDescribe(req PipelineDescribeRequest, resp *PipelineDescribeResponse) error {
	if req.ID <= 0 {
		return fmt.Errorf("invalid pipeline id %d", req.ID)
	}
	detail, err := s.daemon.DescribePipeline(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Pipeline = FromPipeline(detail.Pipeline)
	if detail.Document != nil {
		doc := FromDocument(detail.Document)
		resp.Document = &doc
	}
	resp.Tasks = FromTasks(detail.Tasks)
	return nil
}

func (s *service) TaskList(req TaskListRequest, resp *TaskListResponse) error {
	if req.PipelineID <= 0 {
		return fmt.Errorf("invalid pipeline id %d", req.PipelineID)
	}
	tasks, err := s.daemon.PipelineTasks(s.ctx, req.PipelineID)
	if err != nil {
		return err
	}
	resp.Tasks = FromTasks(tasks)
	return nil
}

func (s *service) RetryFailed(req RetryFailedRequest, resp *RetryFailedResponse) error {
	if req.PipelineID <= 0 {
		return fmt.Errorf("invalid pipeline id %d", req.PipelineID)
	}
	s.log().Debug("pipeline retry requested", logging.Int64(logging.FieldPipelineID, req.PipelineID))
	updated, err := s.daemon.RetryFailed(s.ctx, req.PipelineID)
	if err != nil {
		return err
	}
	resp.Updated = updated
	s.log().Info("failed tasks reset",
		logging.String(logging.FieldEventType, "pipeline_retry"),
		logging.Int64(logging.FieldPipelineID, req.PipelineID),
		logging.Int64("updated_count", updated))
	return nil
}

func (s *service) CancelPipeline(req CancelPipelineRequest, resp *CancelPipelineResponse) error {
	if req.PipelineID <= 0 {
		return fmt.Errorf("invalid pipeline id %d", req.PipelineID)
	}
	cancelled, err := s.daemon.CancelPipeline(s.ctx, req.PipelineID)
	if err != nil {
		return err
	}
	resp.Cancelled = cancelled
	if cancelled {
		s.log().Info("pipeline cancelled",
			logging.String(logging.FieldEventType, "pipeline_cancelled"),
			logging.Int64(logging.FieldPipelineID, req.PipelineID))
	}
	return nil
}

func (s *service) MappingList(req MappingListRequest, resp *MappingListResponse) error {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	details, err := s.daemon.PendingMappings(s.ctx, limit)
	if err != nil {
		return err
	}
	resp.Mappings = make([]Mapping, 0, len(details))
	for _, detail := range details {
		if detail.Mapping == nil {
			continue
		}
		resp.Mappings = append(resp.Mappings, FromMappingDetail(detail))
	}
	return nil
}

func (s *service) MappingConfirm(req MappingConfirmRequest, resp *MappingConfirmResponse) error {
	if req.ID <= 0 {
		return fmt.Errorf("invalid mapping id %d", req.ID)
	}
	if err := s.daemon.ConfirmMapping(s.ctx, req.ID); err != nil {
		return err
	}
	resp.Confirmed = true
	s.log().Info("mapping confirmed via IPC",
		logging.String(logging.FieldEventType, "mapping_confirmed"),
		logging.Int64("mapping_id", req.ID))
	return nil
}

func (s *service) MappingReject(req MappingRejectRequest, resp *MappingRejectResponse) error {
	if req.ID <= 0 {
		return fmt.Errorf("invalid mapping id %d", req.ID)
	}
	if err := s.daemon.RejectMapping(s.ctx, req.ID); err != nil {
		return err
	}
	resp.Rejected = true
	s.log().Info("mapping rejected via IPC",
		logging.String(logging.FieldEventType, "mapping_rejected"),
		logging.Int64("mapping_id", req.ID))
	return nil
}

func (s *service) ReviewList(req ReviewListRequest, resp *ReviewListResponse) error {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	items, err := s.daemon.PendingReview(s.ctx, limit)
	if err != nil {
		return err
	}
	resp.Items = make([]ReviewItem, 0, len(items))
	for _, item := range items {
		resp.Items = append(resp.Items, FromReviewItem(item))
	}
	return nil
}

func (s *service) ReviewApprove(req ReviewApproveRequest, resp *ReviewApproveResponse) error {
	if req.ValidatedID <= 0 {
		return fmt.Errorf("invalid validated item id %d", req.ValidatedID)
	}
	approved, err := s.daemon.ApproveItem(s.ctx, req.ValidatedID, req.ApprovedBy)
	if err != nil {
		return err
	}
	resp.ApprovedID = approved.ID
	s.log().Info("item approved via IPC",
		logging.String(logging.FieldEventType, "item_approved"),
		logging.Int64("validated_id", req.ValidatedID),
		logging.Int64("approved_id", approved.ID))
	return nil
}

func (s *service) ReviewReject(req ReviewRejectRequest, resp *ReviewRejectResponse) error {
	if req.ValidatedID <= 0 {
		return fmt.Errorf("invalid validated item id %d", req.ValidatedID)
	}
	if err := s.daemon.RejectItem(s.ctx, req.ValidatedID, req.Reason, req.RejectedBy); err != nil {
		return err
	}
	resp.Rejected = true
	s.log().Info("item rejected via IPC",
		logging.String(logging.FieldEventType, "item_rejected"),
		logging.Int64("validated_id", req.ValidatedID))
	return nil
}

func (s *service) Ingest(req IngestRequest, resp *IngestResponse) error {
	doc, pl, err := s.daemon.IngestFile(s.ctx, req.Path, ingest.Options{
		Title:    req.Title,
		Language: req.Language,
		Level:    req.Level,
	})
	if err != nil {
		return err
	}
	resp.Document = FromDocument(doc)
	resp.Pipeline = FromPipeline(pl)
	s.log().Info("document ingested via IPC",
		logging.String(logging.FieldEventType, "document_ingested"),
		logging.Int64(logging.FieldDocumentID, doc.ID),
		logging.Int64(logging.FieldPipelineID, pl.ID))
	return nil
}

func (s *service) Checkpoint(_ CheckpointRequest, resp *CheckpointResponse) error {
	checkpoint, err := s.daemon.LatestCheckpoint(s.ctx)
	if err != nil {
		return err
	}
	resp.Checkpoint = FromCheckpoint(checkpoint)
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
