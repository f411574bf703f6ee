package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"
	"time"

	"librarian/internal/api"
	"librarian/internal/daemon"
	"librarian/internal/ledger"
	"librarian/internal/logging"
	"librarian/internal/logs"
	"librarian/internal/pathmap"
)

// ServiceName is the RPC receiver name clients address.
const ServiceName = "Librarian"

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
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
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName(ServiceName, &service{daemon: d, logger: logger, ctx: serverCtx}); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}
	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve accepts RPC connections in the background until Close.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "CLI commands may fail to reach the daemon"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon"),
				)
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
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the socket file manually or rerun librarian stop"),
		)
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.logger.Debug("daemon start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.logger.Info("daemon started via IPC", logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.logger.Info("daemon stopped via IPC", logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	resp.Status = s.daemon.Status(s.ctx).View()
	return nil
}

func (s *service) RequestList(req RequestListRequest, resp *RequestListResponse) error {
	states := make([]ledger.State, 0, len(req.States))
	for _, value := range req.States {
		state, ok := ledger.ParseState(value)
		if !ok {
			return fmt.Errorf("unknown request state %q", value)
		}
		states = append(states, state)
	}
	reqs, err := s.daemon.ListRequests(s.ctx, states)
	if err != nil {
		return err
	}
	resp.Requests = api.FromRequests(reqs)
	return nil
}

func (s *service) RequestDescribe(req RequestDescribeRequest, resp *RequestDescribeResponse) error {
	if strings.TrimSpace(req.ID) == "" {
		return errors.New("request id is required")
	}
	detail, err := s.daemon.DescribeRequest(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Detail = api.FromDetail(detail)
	return nil
}

func (s *service) RequestBind(req RequestBindRequest, resp *RequestBindResponse) error {
	s.logger.Debug("manual bind requested", logging.String(logging.FieldRequestID, req.ID))
	updated, err := s.daemon.BindHash(s.ctx, req.ID, req.Hash)
	if err != nil {
		return err
	}
	resp.Request = api.FromRequest(updated)
	return nil
}

func (s *service) Decide(req DecideRequest, resp *DecideResponse) error {
	decision, err := s.daemon.Decide(s.ctx, req.Payload)
	if err != nil && !ledger.IsBenign(err) {
		return err
	}
	resp.Result = api.ApprovalResponse{
		Request:        api.FromRequest(decision.Request),
		AlreadyDecided: decision.AlreadyDecided,
		Queued:         decision.Queued,
	}
	if decision.SubmitErr != nil {
		resp.Result.Error = decision.SubmitErr.Error()
	}
	return nil
}

func (s *service) JobList(req JobListRequest, resp *JobListResponse) error {
	statuses := make([]ledger.JobStatus, 0, len(req.Statuses))
	for _, value := range req.Statuses {
		status, ok := ledger.ParseJobStatus(value)
		if !ok {
			return fmt.Errorf("unknown job status %q", value)
		}
		statuses = append(statuses, status)
	}
	jobs, err := s.daemon.ListJobs(s.ctx, statuses)
	if err != nil {
		return err
	}
	resp.Jobs = api.FromJobs(jobs)
	return nil
}

func (s *service) JobClear(req JobClearRequest, resp *JobClearResponse) error {
	if err := s.daemon.ClearJob(s.ctx, req.Hash); err != nil {
		return err
	}
	resp.Cleared = true
	return nil
}

func (s *service) Translate(req TranslateRequest, resp *TranslateResponse) error {
	dir, err := ParseDirection(req.Direction)
	if err != nil {
		return err
	}
	translated, err := s.daemon.Translate(req.Path, dir)
	if err != nil {
		return err
	}
	resp.Path = translated
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	if err != nil {
		return err
	}
	resp.Sent = sent
	resp.Message = message
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	logPath := s.daemon.LogPath()
	if logPath == "" {
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	ctx := s.ctx
	if req.Follow {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, logPath, logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
		Match:  req.Match,
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}

// ParseDirection maps a CLI direction name onto a path mapping direction.
func ParseDirection(value string) (pathmap.Direction, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "organizer", "to_organizer":
		return pathmap.ToOrganizer, nil
	case "torrent", "to_torrent":
		return pathmap.ToTorrent, nil
	default:
		return pathmap.ToOrganizer, fmt.Errorf("unknown direction %q (want organizer or torrent)", value)
	}
}
