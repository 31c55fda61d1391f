package binding

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/lacewing/engine"
	"github.com/wippyai/lacewing/errors"
)

// capture fires a get on a manual-finish webserver and returns the wrapper.
func capture(t *testing.T, f *fixture) (*Request, engine.Ref) {
	t.Helper()
	f.ws.EnableManualFinish()
	var got *Request
	f.ws.OnGet(func(req *Request, args ...any) (any, error) {
		got = req
		return nil, nil
	})
	ref := f.request("GET")
	f.eng.Fire(f.ws.Ref(), "get", ref)
	require.NotNil(t, got)
	return got, ref
}

func TestRequest_PostFinishMutatorsFail(t *testing.T) {
	f := newFixture(t)
	req, ref := capture(t, f)

	require.NoError(t, req.Write("hello"))
	require.NoError(t, req.Finish())
	assert.True(t, req.Finished())

	f.eng.Reset()
	mutators := map[string]func() error{
		"write":         func() error { return req.Write("more") },
		"sendFile":      func() error { return req.SendFile("x.txt") },
		"reset":         req.Reset,
		"finish":        req.Finish,
		"disconnect":    req.Disconnect,
		"redirect":      func() error { return req.Redirect("/elsewhere") },
		"status":        func() error { return req.SetStatus(404, "Not Found") },
		"mimeType":      func() error { return req.SetMimeType("text/plain", "") },
		"guessMimeType": func() error { return req.GuessMimeType("a.png") },
		"unmodified":    req.SetUnmodified,
		"disableCache":  req.DisableCache,
		"lastModified":  func() error { return req.SetLastModified(time.Now()) },
		"header":        func() error { return req.SetHeader("X-A", "b") },
		"cookie":        func() error { return req.SetCookie("a", "b") },
		"session":       func() error { return req.SetSession("a", "b") },
		"closeSession":  req.CloseSession,
	}
	for name, fn := range mutators {
		err := fn()
		require.Error(t, err, name)
		assert.True(t, errors.HasKind(err, errors.KindAlreadyFinished), name)
		assert.ErrorIs(t, err, errors.ErrAlreadyFinished, name)
	}

	assert.Empty(t, f.eng.Calls(), "no engine call after finish")
	assert.Equal(t, "hello", f.eng.Request(ref).Output.String())
}

func TestRequest_IdentityStableUntilDisconnect(t *testing.T) {
	f := newFixture(t)
	f.ws.EnableManualFinish()

	var fromGet, fromDisconnect *Request
	f.ws.OnGet(func(req *Request, args ...any) (any, error) {
		fromGet = req
		return nil, nil
	}).OnDisconnect(func(req *Request, args ...any) (any, error) {
		fromDisconnect = req
		return nil, nil
	})

	ref := f.request("GET")
	f.eng.Fire(f.ws.Ref(), "get", ref)
	require.NotNil(t, fromGet)
	assert.Equal(t, 1, f.ws.LiveRequests())

	again, err := WrapRequest(internal, f.ws, ref)
	require.NoError(t, err)
	assert.Same(t, fromGet, again)

	f.eng.Fire(f.ws.Ref(), "disconnect", ref)
	assert.Same(t, fromGet, fromDisconnect)
	assert.True(t, fromGet.Disconnected())
	assert.Equal(t, 0, f.ws.LiveRequests())

	err = fromGet.Write("late")
	assert.True(t, errors.HasKind(err, errors.KindInvalidHandle))
}

func TestRequest_AjaxLongPoll(t *testing.T) {
	f := newFixture(t)
	f.ws.EnableManualFinish()

	var waiting []*Request
	f.ws.OnGet(func(req *Request, args ...any) (any, error) {
		waiting = append(waiting, req)
		return nil, nil
	}).OnPost(func(req *Request, args ...any) (any, error) {
		for _, w := range waiting {
			if err := w.Write(req.POST("message")); err != nil {
				return nil, err
			}
			if err := w.Finish(); err != nil {
				return nil, err
			}
		}
		waiting = nil
		return nil, req.Finish()
	}).OnDisconnect(func(req *Request, args ...any) (any, error) {
		for i, w := range waiting {
			if w == req {
				waiting = append(waiting[:i], waiting[i+1:]...)
				break
			}
		}
		return nil, nil
	})

	a, b := f.request("GET"), f.request("GET")
	f.eng.Fire(f.ws.Ref(), "get", a)
	f.eng.Fire(f.ws.Ref(), "get", b)
	require.Len(t, waiting, 2)

	f.eng.Fire(f.ws.Ref(), "disconnect", b)
	require.Len(t, waiting, 1)

	post := f.request("POST")
	f.eng.Request(post).Form["message"] = "hi"
	f.eng.Fire(f.ws.Ref(), "post", post)

	assert.Empty(t, f.reports)
	assert.Empty(t, waiting)
	assert.Equal(t, "hi", f.eng.Request(a).Output.String())
	assert.True(t, f.eng.Request(a).Finished)
	assert.Equal(t, "", f.eng.Request(b).Output.String())
	assert.Equal(t, 0, f.ws.LiveRequests())
}

func TestRequest_AutoFinishAfterDispatch(t *testing.T) {
	f := newFixture(t)

	var kept *Request
	f.ws.OnGet(func(req *Request, args ...any) (any, error) {
		kept = req
		return nil, req.Write("body")
	})

	f.eng.Fire(f.ws.Ref(), "get", f.request("GET"))
	require.NotNil(t, kept)
	assert.True(t, kept.Finished())
	assert.Equal(t, 0, f.ws.LiveRequests())
	assert.True(t, errors.HasKind(kept.Write("late"), errors.KindAlreadyFinished))
}

func TestRequest_EngineDroppedHandle(t *testing.T) {
	f := newFixture(t)
	req, ref := capture(t, f)

	f.eng.DropRequest(ref)
	err := req.SetHeader("X", "y")
	assert.True(t, errors.HasKind(err, errors.KindInvalidHandle))
	assert.Equal(t, 0, f.ws.LiveRequests())
	assert.Equal(t, "", req.URL())
}

func TestRequest_Forwarding(t *testing.T) {
	f := newFixture(t)
	req, ref := capture(t, f)
	state := f.eng.Request(ref)
	state.URL = "/path?q=1"
	state.Hostname = "example.com"
	state.Secure = true
	state.Body = "a=b"
	state.Query["q"] = "1"
	state.Headers["Accept"] = "text/html"
	state.Cookies["c"] = "v"

	assert.Equal(t, "/path?q=1", req.URL())
	assert.Equal(t, "example.com", req.Hostname())
	assert.True(t, req.Secure())
	assert.Equal(t, "GET", req.Method())
	assert.Equal(t, "a=b", req.Body())
	assert.Equal(t, "1", req.GET("q"))
	assert.Equal(t, "text/html", req.Header("Accept"))
	assert.Equal(t, "v", req.Cookie("c"))

	require.NoError(t, req.SetStatus(404, "Not Found"))
	require.NoError(t, req.SetMimeType("text/plain", "UTF-8"))
	require.NoError(t, req.SetSession("user", "bob"))
	assert.Equal(t, 404, state.Status)
	assert.Equal(t, "text/plain; charset=UTF-8", state.MimeType)
	assert.Equal(t, "bob", req.Session("user"))
	assert.NotEmpty(t, req.SessionID())

	require.NoError(t, req.Redirect("/login"))
	assert.Equal(t, 303, state.Status)
	assert.Equal(t, "/login", state.Headers["Location"])

	modified := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, req.SetLastModified(modified))
	assert.Equal(t, modified, state.LastModified)

	addr, err := req.Address()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", addr.String())
}

func TestRequest_DisconnectThenEvent(t *testing.T) {
	f := newFixture(t)

	var disconnected *Request
	f.ws.OnDisconnect(func(req *Request, args ...any) (any, error) {
		disconnected = req
		return nil, nil
	})
	req, ref := capture(t, f)

	require.NoError(t, req.Disconnect())
	assert.True(t, f.eng.Request(ref).Disconnected)
	assert.True(t, errors.HasKind(req.Write("x"), errors.KindAlreadyFinished))

	f.eng.Fire(f.ws.Ref(), "disconnect", ref)
	assert.Same(t, req, disconnected)
	assert.True(t, req.Disconnected())
}

func TestRequest_DisconnectInAutoFinishMode(t *testing.T) {
	f := newFixture(t)

	var fromGet, fromDisconnect *Request
	var late error
	f.ws.OnGet(func(req *Request, args ...any) (any, error) {
		fromGet = req
		return nil, req.Disconnect()
	}).OnDisconnect(func(req *Request, args ...any) (any, error) {
		fromDisconnect = req
		late = req.Write("after disconnect")
		return nil, nil
	})

	ref := f.request("GET")
	f.eng.Fire(f.ws.Ref(), "get", ref)
	require.NotNil(t, fromGet)
	assert.True(t, fromGet.Disconnecting())
	assert.Equal(t, 1, f.ws.LiveRequests())

	f.eng.Fire(f.ws.Ref(), "disconnect", ref)
	assert.Same(t, fromGet, fromDisconnect)
	assert.True(t, errors.HasKind(late, errors.KindAlreadyFinished))
	assert.Empty(t, f.eng.Request(ref).Output.String())
	assert.True(t, fromGet.Disconnected())
	assert.False(t, fromGet.Disconnecting())
	assert.Equal(t, 0, f.ws.LiveRequests())
	assert.Empty(t, f.reports)
}

func TestRequestState_String(t *testing.T) {
	assert.Equal(t, "active", stateActive.String())
	assert.Equal(t, "finishing", stateFinishing.String())
	assert.Equal(t, "finished", stateFinished.String())
	assert.Equal(t, "disconnected", stateDisconnected.String())
}
