package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"

	"github.com/chazu/marksweep/vm"
)

// HeapServiceName is the fully-qualified name of the heap service.
const HeapServiceName = "marksweep.v1.HeapService"

// Procedure paths for the heap service.
const (
	CreateSessionProcedure = "/" + HeapServiceName + "/CreateSession"
	CloseSessionProcedure  = "/" + HeapServiceName + "/CloseSession"
	PushIntProcedure       = "/" + HeapServiceName + "/PushInt"
	PushPairProcedure      = "/" + HeapServiceName + "/PushPair"
	PopProcedure           = "/" + HeapServiceName + "/Pop"
	CollectProcedure       = "/" + HeapServiceName + "/Collect"
	StatsProcedure         = "/" + HeapServiceName + "/Stats"
)

// HeapService exposes VM sessions over Connect.
type HeapService struct {
	sessions *SessionStore
}

// NewHeapService creates a HeapService over sessions.
func NewHeapService(sessions *SessionStore) *HeapService {
	return &HeapService{sessions: sessions}
}

// CreateSession starts a new VM and returns its session id.
func (s *HeapService) CreateSession(
	ctx context.Context,
	req *connect.Request[CreateSessionRequest],
) (*connect.Response[CreateSessionResponse], error) {
	session := s.sessions.Create(req.Msg.Name)
	return connect.NewResponse(&CreateSessionResponse{SessionID: session.ID}), nil
}

// CloseSession empties a session's heap and discards it.
func (s *HeapService) CloseSession(
	ctx context.Context,
	req *connect.Request[CloseSessionRequest],
) (*connect.Response[CloseSessionResponse], error) {
	if req.Msg.SessionID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("session_id is required"))
	}
	if err := s.sessions.Destroy(ctx, req.Msg.SessionID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&CloseSessionResponse{}), nil
}

// PushInt pushes an integer onto a session's stack.
func (s *HeapService) PushInt(
	ctx context.Context,
	req *connect.Request[PushIntRequest],
) (*connect.Response[PushResponse], error) {
	worker, err := s.worker(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}
	value := req.Msg.Value
	resp, err := call(ctx, worker, func(v *vm.VM) *PushResponse {
		ref := v.PushInt(value)
		return &PushResponse{Ref: uint64(ref), Heap: heapStats(v)}
	})
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(resp), nil
}

// PushPair replaces the top two values with a pair of them.
func (s *HeapService) PushPair(
	ctx context.Context,
	req *connect.Request[PushPairRequest],
) (*connect.Response[PushResponse], error) {
	worker, err := s.worker(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}
	resp, err := call(ctx, worker, func(v *vm.VM) *PushResponse {
		ref := v.PushPair()
		return &PushResponse{Ref: uint64(ref), Heap: heapStats(v)}
	})
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(resp), nil
}

// Pop removes the top value and returns it rendered.
func (s *HeapService) Pop(
	ctx context.Context,
	req *connect.Request[PopRequest],
) (*connect.Response[PopResponse], error) {
	worker, err := s.worker(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}
	type popResult struct {
		resp *PopResponse
		err  error
	}
	result, err := call(ctx, worker, func(v *vm.VM) popResult {
		value, err := v.Format(v.Pop())
		if err != nil {
			return popResult{err: err}
		}
		return popResult{resp: &PopResponse{Value: value, Heap: heapStats(v)}}
	})
	if err == nil {
		err = result.err
	}
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(result.resp), nil
}

// Collect forces a collection cycle.
func (s *HeapService) Collect(
	ctx context.Context,
	req *connect.Request[CollectRequest],
) (*connect.Response[CollectResponse], error) {
	worker, err := s.worker(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}
	resp, err := call(ctx, worker, func(v *vm.VM) *CollectResponse {
		stats := v.GC()
		return &CollectResponse{Cycle: cycleFromStats(stats), Heap: heapStats(v)}
	})
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(resp), nil
}

// Stats reports a session's heap state and most recent cycle.
func (s *HeapService) Stats(
	ctx context.Context,
	req *connect.Request[StatsRequest],
) (*connect.Response[StatsResponse], error) {
	worker, err := s.worker(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}
	resp, err := call(ctx, worker, func(v *vm.VM) *StatsResponse {
		resp := &StatsResponse{Heap: heapStats(v)}
		if last := v.LastCycle(); last != nil {
			c := cycleFromStats(*last)
			resp.Last = &c
		}
		return resp
	})
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(resp), nil
}

func (s *HeapService) worker(id string) (*VMWorker, error) {
	if id == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("session_id is required"))
	}
	session, err := s.sessions.Get(id)
	if err != nil {
		return nil, toConnectError(err)
	}
	return session.worker, nil
}

// toConnectError maps VM and session errors onto Connect codes.
func toConnectError(err error) error {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, vm.ErrStackUnderflow):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, vm.ErrStaleReference), errors.Is(err, vm.ErrInvalidReference):
		return connect.NewError(connect.CodeInternal, err)
	case errors.Is(err, ErrWorkerStopped):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	}
	return connect.NewError(connect.CodeInternal, err)
}

// NewHeapServiceHandler builds an http.Handler serving every heap service
// procedure, and returns the path prefix to mount it on.
func NewHeapServiceHandler(svc *HeapService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(newCBORCodec())}, opts...)

	mux := http.NewServeMux()
	mux.Handle(CreateSessionProcedure, connect.NewUnaryHandler(CreateSessionProcedure, svc.CreateSession, opts...))
	mux.Handle(CloseSessionProcedure, connect.NewUnaryHandler(CloseSessionProcedure, svc.CloseSession, opts...))
	mux.Handle(PushIntProcedure, connect.NewUnaryHandler(PushIntProcedure, svc.PushInt, opts...))
	mux.Handle(PushPairProcedure, connect.NewUnaryHandler(PushPairProcedure, svc.PushPair, opts...))
	mux.Handle(PopProcedure, connect.NewUnaryHandler(PopProcedure, svc.Pop, opts...))
	mux.Handle(CollectProcedure, connect.NewUnaryHandler(CollectProcedure, svc.Collect, opts...))
	mux.Handle(StatsProcedure, connect.NewUnaryHandler(StatsProcedure, svc.Stats, opts...))
	return "/" + HeapServiceName + "/", mux
}
