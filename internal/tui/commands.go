package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"grimm.is/pfw/internal/client"
	"grimm.is/pfw/internal/console"
)

type opKind int

const (
	opFetch opKind = iota
	opSubmit
	opDelete
)

func (k opKind) String() string {
	switch k {
	case opSubmit:
		return "submit"
	case opDelete:
		return "delete"
	}
	return "fetch"
}

// opResultMsg carries the state clone an operation ran on. Update swaps it
// in, so the model's state is only ever written from the Update loop.
type opResultMsg struct {
	op       opKind
	state    *console.State
	mutation client.Mutation
	err      error
}

type ruleEventMsg client.RuleEvent

type watchEndedMsg struct{ err error }

func runOp(ctx context.Context, timeout time.Duration, op opKind, snap *console.State, fn func(context.Context) (client.Mutation, error)) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		m, err := fn(ctx)
		return opResultMsg{op: op, state: snap, mutation: m, err: err}
	}
}

func (m Model) fetchCmd() tea.Cmd {
	snap := m.state.Clone()
	return runOp(m.ctx, m.timeout, opFetch, snap, func(ctx context.Context) (client.Mutation, error) {
		return client.Mutation{}, snap.FetchRules(ctx)
	})
}

func (m Model) submitCmd() tea.Cmd {
	snap := m.state.Clone()
	return runOp(m.ctx, m.timeout, opSubmit, snap, snap.SubmitDraft)
}

func (m Model) deleteCmd(index int) tea.Cmd {
	snap := m.state.Clone()
	return runOp(m.ctx, m.timeout, opDelete, snap, func(ctx context.Context) (client.Mutation, error) {
		return snap.DeleteRule(ctx, index)
	})
}

// watchCmd holds the event stream open until ctx ends or it drops.
func (m Model) watchCmd() tea.Cmd {
	w, ch, ctx := m.watcher, m.eventCh, m.ctx
	return func() tea.Msg {
		err := w.Watch(ctx, func(e client.RuleEvent) {
			select {
			case ch <- e:
			default:
			}
		})
		return watchEndedMsg{err: err}
	}
}

func (m Model) waitEvent() tea.Cmd {
	ch, ctx := m.eventCh, m.ctx
	return func() tea.Msg {
		select {
		case e := <-ch:
			return ruleEventMsg(e)
		case <-ctx.Done():
			return nil
		}
	}
}

type reconnectMsg struct{}

func reconnectAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return reconnectMsg{} })
}
