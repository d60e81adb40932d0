package cache

import (
	"context"

	"github.com/danhigham/tgcache/internal/domain"
	"github.com/danhigham/tgcache/internal/telegram"
)

// channelMembers fetches a page of channel members. The first page of the
// recent list is kept on the full record so speculative changes can edit
// it.
func (m *Manager) channelMembers(id domain.ChannelID, filter telegram.MemberFilter, offset, limit int, done func([]domain.Member, int32, error)) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	m.channelLoader.Load(id, m.opts.LoadTries, func(c domain.Channel, err error) {
		if err != nil {
			done(nil, 0, classify(err))
			return
		}
		if c.IsBroadcast && !c.Status.IsAdministrator() {
			done(nil, 0, precondition("members of channel %d are hidden", id))
			return
		}
		ch := m.inputChannel(id)
		var res *telegram.MembersResult
		m.goRequest(func(ctx context.Context) (err error) {
			res, err = m.transport.GetChannelMembers(ctx, ch, filter, offset, limit)
			return err
		}, func(err error) {
			if err != nil {
				done(nil, 0, classify(err))
				return
			}
			m.ingest(&res.Entities)
			if filter == telegram.MembersRecent && offset == 0 {
				m.cacheChannelMembers(id, res)
			}
			for _, mem := range res.Members {
				if mem.UserID == m.selfID {
					m.refreshSelfStatus(id, mem.Status)
				}
			}
			done(append([]domain.Member(nil), res.Members...), res.Total, nil)
		})
	})
}

func (m *Manager) cacheChannelMembers(id domain.ChannelID, res *telegram.MembersResult) {
	f, ok := m.channelFulls[id]
	if !ok || !f.received {
		return
	}
	f.Members = append([]domain.Member{}, res.Members...)
	if res.Total > 0 && res.Total != f.ParticipantCount {
		f.ParticipantCount = res.Total
	}
	f.changed = true
	m.commitChannelFull(id, f)
}

func (m *Manager) refreshSelfStatus(id domain.ChannelID, status domain.MemberStatus) {
	r, ok := m.channel(id)
	if !ok || r.Status == status {
		return
	}
	r.Status = status
	r.changed, r.dirty = true, true
	m.commitChannel(r)
}
