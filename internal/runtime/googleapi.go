// internal/runtime/googleapi.go adapts *gmail.Service to gc.Client
package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	gc "github.com/joshsymonds/chronotriage/internal/gmail"
	"github.com/joshsymonds/chronotriage/internal/netretry"
	"github.com/joshsymonds/chronotriage/internal/rate"
)

const me = "me"

type GoogleClient struct {
	svc     *gmailv1.Service
	limiter rate.Limiter
	retry   *netretry.Caller
}

// NewGoogleAPIClient wraps svc. Every request waits on limiter and runs through retry.
func NewGoogleAPIClient(svc *gmailv1.Service, limiter rate.Limiter, retry *netretry.Caller) *GoogleClient {
	if retry == nil {
		retry = netretry.New(netretry.DefaultConfig(), nil)
	}
	return &GoogleClient{svc: svc, limiter: limiter, retry: retry}
}

func (g *GoogleClient) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return g.retry.Do(ctx, op, func(ctx context.Context) error {
		if err := rate.Wait(ctx, g.limiter, op); err != nil {
			return err
		}
		return mapError(fn(ctx))
	})
}

// mapError translates API status codes into the client sentinels.
func mapError(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}
	switch gerr.Code {
	case http.StatusConflict:
		return fmt.Errorf("%w: %v", gc.ErrLabelExists, err)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %v", gc.ErrNotFound, err)
	}
	return err
}

func (g *GoogleClient) ListThreads(ctx context.Context, q gc.Query, pageToken string, pageSize int) (gc.ThreadPage, error) {
	var page gc.ThreadPage
	err := g.call(ctx, "list threads", func(ctx context.Context) error {
		call := g.svc.Users.Threads.List(me).Q(q.Raw)
		if len(q.LabelIDs) > 0 {
			call = call.LabelIds(toStrings(q.LabelIDs)...)
		}
		if pageSize > 0 {
			call = call.MaxResults(int64(pageSize))
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		res, err := call.Context(ctx).Do()
		if err != nil {
			return err
		}
		page = gc.ThreadPage{NextPageToken: res.NextPageToken}
		for _, t := range res.Threads {
			page.IDs = append(page.IDs, gc.ThreadID(t.Id))
		}
		return nil
	})
	return page, err
}

func (g *GoogleClient) GetThread(ctx context.Context, id gc.ThreadID) (gc.Thread, error) {
	th := gc.Thread{ID: id}
	err := g.call(ctx, "get thread", func(ctx context.Context) error {
		res, err := g.svc.Users.Threads.Get(me, string(id)).Format("full").Context(ctx).Do()
		if err != nil {
			return err
		}
		th.Messages = th.Messages[:0]
		for _, m := range res.Messages {
			th.Messages = append(th.Messages, toMessage(m))
		}
		return nil
	})
	return th, err
}

func (g *GoogleClient) ModifyThread(ctx context.Context, id gc.ThreadID, ops gc.ModifyOps) error {
	if ops.Empty() {
		return nil
	}
	req := &gmailv1.ModifyThreadRequest{
		AddLabelIds:    toStrings(ops.AddLabels),
		RemoveLabelIds: toStrings(ops.RemoveLabels),
	}
	return g.call(ctx, "modify thread", func(ctx context.Context) error {
		_, err := g.svc.Users.Threads.Modify(me, string(id), req).Context(ctx).Do()
		return err
	})
}

func (g *GoogleClient) ListLabels(ctx context.Context) ([]gc.Label, error) {
	var out []gc.Label
	err := g.call(ctx, "list labels", func(ctx context.Context) error {
		res, err := g.svc.Users.Labels.List(me).Context(ctx).Do()
		if err != nil {
			return err
		}
		out = out[:0]
		for _, l := range res.Labels {
			out = append(out, toLabel(l))
		}
		return nil
	})
	return out, err
}

func (g *GoogleClient) CreateLabel(ctx context.Context, spec gc.LabelSpec) (gc.Label, error) {
	var out gc.Label
	err := g.call(ctx, "create label", func(ctx context.Context) error {
		res, err := g.svc.Users.Labels.Create(me, labelResource(spec)).Context(ctx).Do()
		if err != nil {
			return err
		}
		out = toLabel(res)
		return nil
	})
	return out, err
}

func (g *GoogleClient) UpdateLabel(ctx context.Context, id gc.LabelID, spec gc.LabelSpec) (gc.Label, error) {
	var out gc.Label
	err := g.call(ctx, "update label", func(ctx context.Context) error {
		res, err := g.svc.Users.Labels.Patch(me, string(id), labelResource(spec)).Context(ctx).Do()
		if err != nil {
			return err
		}
		out = toLabel(res)
		return nil
	})
	return out, err
}

func (g *GoogleClient) DeleteLabel(ctx context.Context, id gc.LabelID) error {
	return g.call(ctx, "delete label", func(ctx context.Context) error {
		return g.svc.Users.Labels.Delete(me, string(id)).Context(ctx).Do()
	})
}

func labelResource(spec gc.LabelSpec) *gmailv1.Label {
	visibility := "show"
	if spec.HideInMessageList {
		visibility = "hide"
	}
	return &gmailv1.Label{
		Name:                  spec.Name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: visibility,
	}
}

func toLabel(l *gmailv1.Label) gc.Label {
	return gc.Label{ID: gc.LabelID(l.Id), Name: l.Name, System: l.Type == "system"}
}

var _ gc.Client = (*GoogleClient)(nil)
