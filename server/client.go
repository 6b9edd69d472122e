package server

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
)

// Client talks to a heap server.
type Client struct {
	createSession *connect.Client[CreateSessionRequest, CreateSessionResponse]
	closeSession  *connect.Client[CloseSessionRequest, CloseSessionResponse]
	pushInt       *connect.Client[PushIntRequest, PushResponse]
	pushPair      *connect.Client[PushPairRequest, PushResponse]
	pop           *connect.Client[PopRequest, PopResponse]
	collect       *connect.Client[CollectRequest, CollectResponse]
	stats         *connect.Client[StatsRequest, StatsResponse]
}

// NewClient creates a Client for the server at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts = append([]connect.ClientOption{connect.WithCodec(newCBORCodec())}, opts...)
	return &Client{
		createSession: connect.NewClient[CreateSessionRequest, CreateSessionResponse](httpClient, baseURL+CreateSessionProcedure, opts...),
		closeSession:  connect.NewClient[CloseSessionRequest, CloseSessionResponse](httpClient, baseURL+CloseSessionProcedure, opts...),
		pushInt:       connect.NewClient[PushIntRequest, PushResponse](httpClient, baseURL+PushIntProcedure, opts...),
		pushPair:      connect.NewClient[PushPairRequest, PushResponse](httpClient, baseURL+PushPairProcedure, opts...),
		pop:           connect.NewClient[PopRequest, PopResponse](httpClient, baseURL+PopProcedure, opts...),
		collect:       connect.NewClient[CollectRequest, CollectResponse](httpClient, baseURL+CollectProcedure, opts...),
		stats:         connect.NewClient[StatsRequest, StatsResponse](httpClient, baseURL+StatsProcedure, opts...),
	}
}

func (c *Client) CreateSession(ctx context.Context, name string) (string, error) {
	resp, err := c.createSession.CallUnary(ctx, connect.NewRequest(&CreateSessionRequest{Name: name}))
	if err != nil {
		return "", err
	}
	return resp.Msg.SessionID, nil
}

func (c *Client) CloseSession(ctx context.Context, session string) error {
	_, err := c.closeSession.CallUnary(ctx, connect.NewRequest(&CloseSessionRequest{SessionID: session}))
	return err
}

func (c *Client) PushInt(ctx context.Context, session string, value int64) (*PushResponse, error) {
	resp, err := c.pushInt.CallUnary(ctx, connect.NewRequest(&PushIntRequest{SessionID: session, Value: value}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) PushPair(ctx context.Context, session string) (*PushResponse, error) {
	resp, err := c.pushPair.CallUnary(ctx, connect.NewRequest(&PushPairRequest{SessionID: session}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) Pop(ctx context.Context, session string) (*PopResponse, error) {
	resp, err := c.pop.CallUnary(ctx, connect.NewRequest(&PopRequest{SessionID: session}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) Collect(ctx context.Context, session string) (*CollectResponse, error) {
	resp, err := c.collect.CallUnary(ctx, connect.NewRequest(&CollectRequest{SessionID: session}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) Stats(ctx context.Context, session string) (*StatsResponse, error) {
	resp, err := c.stats.CallUnary(ctx, connect.NewRequest(&StatsRequest{SessionID: session}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}
