package livesync

import (
	"context"
	"errors"
	"sync"
	"testing"

	"jobform/internal/form"
	"jobform/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// gatedRemote blocks each sync call until its release channel is closed.
type gatedRemote struct {
	mu       sync.Mutex
	def      *model.LiveFormDefinition
	calls    []model.SyncRequest
	gates    []chan struct{}
	outcomes []*model.SyncResponse
	started  chan int
}

func newGatedRemote(n int) *gatedRemote {
	r := &gatedRemote{started: make(chan int, n)}
	for i := 0; i < n; i++ {
		r.gates = append(r.gates, make(chan struct{}))
		r.outcomes = append(r.outcomes, &model.SyncResponse{Success: true})
	}
	return r
}

func (r *gatedRemote) LiveFormDefinition(ctx context.Context, tcJobID string) (*model.LiveFormDefinition, error) {
	return r.def, nil
}

func (r *gatedRemote) SyncLiveAnswers(ctx context.Context, tcJobID string, body model.SyncRequest) (*model.SyncResponse, error) {
	r.mu.Lock()
	i := len(r.calls)
	r.calls = append(r.calls, body)
	r.mu.Unlock()
	r.started <- i
	<-r.gates[i]
	return r.outcomes[i], nil
}

func TestTracker_Transitions(t *testing.T) {
	tr := NewTracker()
	assert.Equal(t, StatusIdle, tr.Status())

	seq := tr.Begin()
	assert.Equal(t, StatusSyncing, tr.Status())
	assert.True(t, tr.Complete(seq, nil))
	assert.Equal(t, StatusSynced, tr.Status())

	tr.Invalidate()
	assert.Equal(t, StatusIdle, tr.Status())

	seq = tr.Begin()
	boom := errors.New("boom")
	assert.True(t, tr.Complete(seq, boom))
	assert.Equal(t, StatusError, tr.Status())
	assert.Equal(t, boom, tr.LastError())

	tr.Invalidate()
	assert.Equal(t, StatusIdle, tr.Status())
	assert.NoError(t, tr.LastError())
}

func TestTracker_EditDuringSyncDoesNotReportSynced(t *testing.T) {
	tr := NewTracker()
	seq := tr.Begin()
	tr.Invalidate()
	assert.Equal(t, StatusSyncing, tr.Status())
	assert.True(t, tr.Complete(seq, nil))
	assert.Equal(t, StatusIdle, tr.Status())
}

func TestTracker_StaleCompletionIgnored(t *testing.T) {
	tr := NewTracker()
	first := tr.Begin()
	second := tr.Begin()
	assert.True(t, tr.Complete(second, nil))
	assert.False(t, tr.Complete(first, errors.New("late failure")))
	assert.Equal(t, StatusSynced, tr.Status())
}

func TestAdapter_LateFirstResponseDoesNotOverrideSecond(t *testing.T) {
	remote := newGatedRemote(2)
	remote.outcomes[0] = &model.SyncResponse{Success: false, Error: "validation failed"}
	a := NewAdapter(remote, zap.NewNop())
	ctx := context.Background()

	type outcome struct {
		res Result
		err error
	}
	first := make(chan outcome, 1)
	go func() {
		res, err := a.SyncAnswers(ctx, "tc-1", model.SyncRequest{Answers: model.Answers{"q1": "a"}})
		first <- outcome{res, err}
	}()
	require.Equal(t, 0, <-remote.started)

	a.Tracker().Invalidate()

	second := make(chan outcome, 1)
	go func() {
		res, err := a.SyncAnswers(ctx, "tc-1", model.SyncRequest{Answers: model.Answers{"q1": "b"}})
		second <- outcome{res, err}
	}()
	require.Equal(t, 1, <-remote.started)

	close(remote.gates[1])
	out2 := <-second
	require.NoError(t, out2.err)
	assert.True(t, out2.res.Applied)
	assert.Equal(t, StatusSynced, a.Tracker().Status())

	close(remote.gates[0])
	out1 := <-first
	assert.ErrorIs(t, out1.err, ErrRemote)
	assert.False(t, out1.res.Applied)
	assert.Equal(t, StatusSynced, a.Tracker().Status())
}

func TestAdapter_RemoteRejectionSetsError(t *testing.T) {
	remote := newGatedRemote(1)
	remote.outcomes[0] = &model.SyncResponse{Success: false, Error: "job closed"}
	close(remote.gates[0])
	a := NewAdapter(remote, zap.NewNop())

	_, err := a.SyncAnswers(context.Background(), "tc-1", model.SyncRequest{})
	require.ErrorIs(t, err, ErrRemote)
	assert.Contains(t, err.Error(), "job closed")
	assert.Equal(t, StatusError, a.Tracker().Status())
	assert.Len(t, remote.calls, 1)
}

func TestAdapter_FetchDefinition(t *testing.T) {
	groupNo := 7
	remote := newGatedRemote(0)
	remote.def = &model.LiveFormDefinition{
		Form: &model.LiveForm{
			TemplateID: "t1", TemplateName: "Install", TCFormID: "f9", TCJobID: "tc-1",
			Groups: []model.Group{{ID: "g1", Name: "Checks", CSVGroupID: &groupNo,
				Questions: []model.Question{{ID: "q1", FieldType: model.FieldText}}}},
		},
		SavedAnswers: model.Answers{"q1": "done"},
	}
	a := NewAdapter(remote, zap.NewNop())

	def, err := a.FetchDefinition(context.Background(), "tc-1")
	require.NoError(t, err)
	assert.Equal(t, "t1", def.Template.ID)
	assert.Equal(t, "Install", def.Template.Name)
	assert.Equal(t, "f9", def.TCFormID)
	assert.Equal(t, model.Answers{"q1": "done"}, def.SavedAnswers)
	assert.NotNil(t, def.SavedFiles)

	s, err := form.NewSchema(def.Template)
	require.NoError(t, err)
	assert.Equal(t, 7, GroupNumber(s, 0))
}

func TestAdapter_FetchDefinitionWithoutForm(t *testing.T) {
	remote := newGatedRemote(0)
	remote.def = &model.LiveFormDefinition{}
	a := NewAdapter(remote, zap.NewNop())
	_, err := a.FetchDefinition(context.Background(), "tc-1")
	assert.ErrorIs(t, err, ErrNoForm)
}

func TestBuildRequest_SplitsPhotos(t *testing.T) {
	s, err := form.NewSchema(model.Template{ID: "t", Groups: []model.Group{{ID: "g",
		Questions: []model.Question{
			{ID: "q1", FieldType: model.FieldText},
			{ID: "p1", FieldType: model.FieldFile},
		}}}})
	require.NoError(t, err)

	n := 2
	req := BuildRequest(s, model.Answers{"q1": "x", "p1": "https://cdn/p.jpg"}, &n, false)
	assert.Equal(t, model.Answers{"q1": "x"}, req.Answers)
	assert.Equal(t, model.Answers{"p1": "https://cdn/p.jpg"}, req.PhotoURLs)
	assert.Equal(t, 2, *req.GroupNo)
	assert.False(t, req.IsComplete)
	assert.Equal(t, 1, GroupNumber(s, 0))
}

func TestBuildRequest_SendsOptionText(t *testing.T) {
	opts := []model.AnswerOption{{ID: "opt-1", Text: "Gas"}, {ID: "opt-2", Text: "Oil"}}
	s, err := form.NewSchema(model.Template{ID: "t", Groups: []model.Group{{ID: "g",
		Questions: []model.Question{
			{ID: "fuel", FieldType: model.FieldDropdown, AnswerOptions: opts},
			{ID: "fuels", FieldType: model.FieldMultiCheckbox, AnswerOptions: opts},
			{ID: "note", FieldType: model.FieldText},
		}}}})
	require.NoError(t, err)

	answers := model.Answers{"fuel": "opt-1", "fuels": []interface{}{"opt-2", "Gas"}, "note": "opt-1"}
	req := BuildRequest(s, answers, nil, true)
	assert.Equal(t, "Gas", req.Answers["fuel"])
	assert.Equal(t, []string{"Oil", "Gas"}, req.Answers["fuels"])
	assert.Equal(t, "opt-1", req.Answers["note"])
	assert.Equal(t, "opt-1", answers["fuel"])
}
