package telegram

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/updates"
	"github.com/gotd/td/tg"

	"github.com/danhigham/tgcache/internal/domain"
)

// ErrNotConnected is returned by requests issued before the session is
// authorized or after it stopped.
var ErrNotConnected = errors.New("not connected")

// Gotd implements Transport over an MTProto session.
type Gotd struct {
	apiID      int
	apiHash    string
	sessionDir string
	authFlow   auth.UserAuthenticator
	logger     *zap.Logger

	client *telegram.Client
	gaps   *updates.Manager

	mu      sync.RWMutex
	api     *tg.Client
	handler UpdateHandler
	selfID  atomic.Int64

	onReady func(self domain.UserID)
}

var _ Transport = (*Gotd)(nil)

func NewGotd(apiID int, apiHash, sessionDir string, authFlow auth.UserAuthenticator, logger *zap.Logger) *Gotd {
	return &Gotd{
		apiID:      apiID,
		apiHash:    apiHash,
		sessionDir: sessionDir,
		authFlow:   authFlow,
		logger:     logger,
	}
}

// SetHandler installs the receiver of push events. Events arriving before a
// handler is installed are dropped.
func (c *Gotd) SetHandler(h UpdateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// SetOnReady registers fn to be called once the session is authorized.
func (c *Gotd) SetOnReady(fn func(self domain.UserID)) {
	c.onReady = fn
}

func (c *Gotd) currentHandler() UpdateHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handler
}

func (c *Gotd) rpc() (*tg.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.api == nil {
		return nil, ErrNotConnected
	}
	return c.api, nil
}

// Run connects, authenticates if necessary and processes updates until ctx
// is cancelled.
func (c *Gotd) Run(ctx context.Context) error {
	d := tg.NewUpdateDispatcher()
	c.register(&d)

	c.gaps = updates.New(updates.Config{
		Handler: d,
		Logger:  c.logger.Named("gaps"),
	})

	c.client = telegram.NewClient(c.apiID, c.apiHash, telegram.Options{
		Logger:         c.logger,
		UpdateHandler:  c.gaps,
		SessionStorage: &session.FileStorage{Path: filepath.Join(c.sessionDir, "session.json")},
	})

	return c.client.Run(ctx, func(ctx context.Context) error {
		flow := auth.NewFlow(c.authFlow, auth.SendCodeOptions{})
		if err := c.client.Auth().IfNecessary(ctx, flow); err != nil {
			return errors.Wrap(err, "auth")
		}

		self, err := c.client.Self(ctx)
		if err != nil {
			return errors.Wrap(err, "get self")
		}
		c.selfID.Store(self.ID)

		c.mu.Lock()
		c.api = c.client.API()
		c.mu.Unlock()
		defer func() {
			c.mu.Lock()
			c.api = nil
			c.mu.Unlock()
		}()

		if h := c.currentHandler(); h != nil {
			e := convertEntities([]tg.UserClass{self}, nil)
			h.OnEntities(&e)
		}
		if c.onReady != nil {
			c.onReady(domain.UserID(self.ID))
		}

		return c.gaps.Run(ctx, c.client.API(), self.ID, updates.AuthOptions{})
	})
}

// feed hands the updates returned by a mutation to the gap manager so they
// are processed in order with pushed ones.
func (c *Gotd) feed(ctx context.Context, u tg.UpdatesClass) {
	if u == nil || c.gaps == nil {
		return
	}
	if err := c.gaps.Handle(ctx, u); err != nil {
		c.logger.Warn("Failed to handle updates", zap.Error(err))
	}
}

func inputUser(a InputAccount) tg.InputUserClass {
	return &tg.InputUser{UserID: int64(a.ID), AccessHash: a.AccessHash}
}

func inputUsers(accounts []InputAccount) []tg.InputUserClass {
	out := make([]tg.InputUserClass, len(accounts))
	for i, a := range accounts {
		out[i] = inputUser(a)
	}
	return out
}

func inputPeerUser(a InputAccount) tg.InputPeerClass {
	return &tg.InputPeerUser{UserID: int64(a.ID), AccessHash: a.AccessHash}
}

func inputChannel(ch InputChannel) tg.InputChannelClass {
	return &tg.InputChannel{ChannelID: int64(ch.ID), AccessHash: ch.AccessHash}
}

func chatsOf(r tg.MessagesChatsClass) []tg.ChatClass {
	switch r := r.(type) {
	case *tg.MessagesChats:
		return r.Chats
	case *tg.MessagesChatsSlice:
		return r.Chats
	default:
		return nil
	}
}

func (c *Gotd) GetAccounts(ctx context.Context, accounts []InputAccount) (*Entities, error) {
	api, err := c.rpc()
	if err != nil {
		return nil, err
	}
	users, err := api.UsersGetUsers(ctx, inputUsers(accounts))
	if err != nil {
		return nil, classify(err)
	}
	e := convertEntities(users, nil)
	return &e, nil
}

func (c *Gotd) GetBasicGroups(ctx context.Context, ids []domain.ChatID) (*Entities, error) {
	api, err := c.rpc()
	if err != nil {
		return nil, err
	}
	raw := make([]int64, len(ids))
	for i, id := range ids {
		raw[i] = int64(id)
	}
	r, err := api.MessagesGetChats(ctx, raw)
	if err != nil {
		return nil, classify(err)
	}
	e := convertEntities(nil, chatsOf(r))
	return &e, nil
}

func (c *Gotd) GetChannels(ctx context.Context, channels []InputChannel) (*Entities, error) {
	api, err := c.rpc()
	if err != nil {
		return nil, err
	}
	in := make([]tg.InputChannelClass, len(channels))
	for i, ch := range channels {
		in[i] = inputChannel(ch)
	}
	r, err := api.ChannelsGetChannels(ctx, in)
	if err != nil {
		return nil, classify(err)
	}
	e := convertEntities(nil, chatsOf(r))
	return &e, nil
}

func (c *Gotd) GetAccountFull(ctx context.Context, account InputAccount) (*AccountFullResult, error) {
	api, err := c.rpc()
	if err != nil {
		return nil, err
	}
	r, err := api.UsersGetFullUser(ctx, inputUser(account))
	if err != nil {
		return nil, classify(err)
	}
	return &AccountFullResult{
		UserID:   domain.UserID(r.FullUser.ID),
		Full:     convertUserFull(&r.FullUser),
		Entities: convertEntities(r.Users, r.Chats),
	}, nil
}

func (c *Gotd) GetBasicGroupFull(ctx context.Context, id domain.ChatID) (*BasicGroupFullResult, error) {
	api, err := c.rpc()
	if err != nil {
		return nil, err
	}
	r, err := api.MessagesGetFullChat(ctx, int64(id))
	if err != nil {
		return nil, classify(err)
	}
	f, ok := r.FullChat.(*tg.ChatFull)
	if !ok {
		return nil, errors.Errorf("unexpected full chat type %T", r.FullChat)
	}
	return &BasicGroupFullResult{
		ChatID:   domain.ChatID(f.ID),
		Full:     convertChatFull(f),
		Entities: convertEntities(r.Users, r.Chats),
	}, nil
}

func (c *Gotd) GetChannelFull(ctx context.Context, channel InputChannel) (*ChannelFullResult, error) {
	api, err := c.rpc()
	if err != nil {
		return nil, err
	}
	r, err := api.ChannelsGetFullChannel(ctx, inputChannel(channel))
	if err != nil {
		return nil, classify(err)
	}
	f, ok := r.FullChat.(*tg.ChannelFull)
	if !ok {
		return nil, errors.Errorf("unexpected full channel type %T", r.FullChat)
	}
	return &ChannelFullResult{
		ChannelID: domain.ChannelID(f.ID),
		Full:      convertChannelFull(f),
		Entities:  convertEntities(r.Users, r.Chats),
	}, nil
}

func (c *Gotd) GetChannelMembers(ctx context.Context, channel InputChannel, filter MemberFilter, offset, limit int) (*MembersResult, error) {
	api, err := c.rpc()
	if err != nil {
		return nil, err
	}
	r, err := api.ChannelsGetParticipants(ctx, &tg.ChannelsGetParticipantsRequest{
		Channel: inputChannel(channel),
		Filter:  memberFilterToWire(filter),
		Offset:  offset,
		Limit:   limit,
	})
	if err != nil {
		return nil, classify(err)
	}
	list, ok := r.(*tg.ChannelsChannelParticipants)
	if !ok {
		return &MembersResult{}, nil
	}
	res := &MembersResult{
		Total:    int32(list.Count),
		Entities: convertEntities(list.Users, list.Chats),
	}
	for _, p := range list.Participants {
		if m, ok := convertChannelParticipant(p); ok {
			res.Members = append(res.Members, m)
		}
	}
	return res, nil
}

func (c *Gotd) GetContacts(ctx context.Context, hash int64) (*ContactsResult, error) {
	api, err := c.rpc()
	if err != nil {
		return nil, err
	}
	r, err := api.ContactsGetContacts(ctx, hash)
	if err != nil {
		return nil, classify(err)
	}
	list, ok := r.(*tg.ContactsContacts)
	if !ok {
		return &ContactsResult{NotModified: true}, nil
	}
	res := &ContactsResult{
		SavedCount: int32(list.SavedCount),
		Entities:   convertEntities(list.Users, nil),
	}
	for _, ct := range list.Contacts {
		res.UserIDs = append(res.UserIDs, domain.UserID(ct.UserID))
	}
	return res, nil
}

func (c *Gotd) ImportContacts(ctx context.Context, contacts []domain.Contact) (*ImportResult, error) {
	api, err := c.rpc()
	if err != nil {
		return nil, err
	}
	in := make([]tg.InputPhoneContact, len(contacts))
	for i, ct := range contacts {
		in[i] = tg.InputPhoneContact{
			ClientID:  int64(i),
			Phone:     ct.Phone,
			FirstName: ct.FirstName,
			LastName:  ct.LastName,
		}
	}
	r, err := api.ContactsImportContacts(ctx, in)
	if err != nil {
		return nil, classify(err)
	}
	res := &ImportResult{
		UserIDs:  make([]domain.UserID, len(contacts)),
		Entities: convertEntities(r.Users, nil),
	}
	for _, imp := range r.Imported {
		if i := int(imp.ClientID); i >= 0 && i < len(contacts) {
			res.UserIDs[i] = domain.UserID(imp.UserID)
		}
	}
	for _, id := range r.RetryContacts {
		if i := int(id); i >= 0 && i < len(contacts) {
			res.Retry = append(res.Retry, i)
		}
	}
	return res, nil
}

func (c *Gotd) DeleteContacts(ctx context.Context, accounts []InputAccount) error {
	api, err := c.rpc()
	if err != nil {
		return err
	}
	u, err := api.ContactsDeleteContacts(ctx, inputUsers(accounts))
	if err != nil {
		return classify(err)
	}
	c.feed(ctx, u)
	return nil
}

func (c *Gotd) SetBlocked(ctx context.Context, account InputAccount, blocked bool) error {
	api, err := c.rpc()
	if err != nil {
		return err
	}
	if blocked {
		_, err = api.ContactsBlock(ctx, &tg.ContactsBlockRequest{ID: inputPeerUser(account)})
	} else {
		_, err = api.ContactsUnblock(ctx, &tg.ContactsUnblockRequest{ID: inputPeerUser(account)})
	}
	return classify(err)
}

func (c *Gotd) invited(ctx context.Context, r *tg.MessagesInvitedUsers) *InviteResult {
	c.feed(ctx, r.Updates)
	res := &InviteResult{}
	for _, m := range r.MissingInvitees {
		res.Missing = append(res.Missing, domain.UserID(m.UserID))
	}
	return res
}

func (c *Gotd) AddBasicGroupMember(ctx context.Context, id domain.ChatID, account InputAccount, forwardLimit int) (*InviteResult, error) {
	api, err := c.rpc()
	if err != nil {
		return nil, err
	}
	r, err := api.MessagesAddChatUser(ctx, &tg.MessagesAddChatUserRequest{
		ChatID:   int64(id),
		UserID:   inputUser(account),
		FwdLimit: forwardLimit,
	})
	if err != nil {
		return nil, classify(err)
	}
	return c.invited(ctx, r), nil
}

func (c *Gotd) RemoveBasicGroupMember(ctx context.Context, id domain.ChatID, account InputAccount) error {
	api, err := c.rpc()
	if err != nil {
		return err
	}
	u, err := api.MessagesDeleteChatUser(ctx, &tg.MessagesDeleteChatUserRequest{
		ChatID: int64(id),
		UserID: inputUser(account),
	})
	if err != nil {
		return classify(err)
	}
	c.feed(ctx, u)
	return nil
}

func (c *Gotd) SetBasicGroupAdmin(ctx context.Context, id domain.ChatID, account InputAccount, isAdmin bool) error {
	api, err := c.rpc()
	if err != nil {
		return err
	}
	_, err = api.MessagesEditChatAdmin(ctx, &tg.MessagesEditChatAdminRequest{
		ChatID:  int64(id),
		UserID:  inputUser(account),
		IsAdmin: isAdmin,
	})
	return classify(err)
}

func (c *Gotd) InviteToChannel(ctx context.Context, channel InputChannel, accounts []InputAccount) (*InviteResult, error) {
	api, err := c.rpc()
	if err != nil {
		return nil, err
	}
	r, err := api.ChannelsInviteToChannel(ctx, &tg.ChannelsInviteToChannelRequest{
		Channel: inputChannel(channel),
		Users:   inputUsers(accounts),
	})
	if err != nil {
		return nil, classify(err)
	}
	return c.invited(ctx, r), nil
}

func (c *Gotd) JoinChannel(ctx context.Context, channel InputChannel) error {
	api, err := c.rpc()
	if err != nil {
		return err
	}
	u, err := api.ChannelsJoinChannel(ctx, inputChannel(channel))
	if err != nil {
		return classify(err)
	}
	c.feed(ctx, u)
	return nil
}

func (c *Gotd) LeaveChannel(ctx context.Context, channel InputChannel) error {
	api, err := c.rpc()
	if err != nil {
		return err
	}
	u, err := api.ChannelsLeaveChannel(ctx, inputChannel(channel))
	if err != nil {
		return classify(err)
	}
	c.feed(ctx, u)
	return nil
}

func (c *Gotd) EditChannelAdmin(ctx context.Context, channel InputChannel, account InputAccount, rights domain.AdminRights, rank string) error {
	api, err := c.rpc()
	if err != nil {
		return err
	}
	u, err := api.ChannelsEditAdmin(ctx, &tg.ChannelsEditAdminRequest{
		Channel:     inputChannel(channel),
		UserID:      inputUser(account),
		AdminRights: adminRightsToWire(rights),
		Rank:        rank,
	})
	if err != nil {
		return classify(err)
	}
	c.feed(ctx, u)
	return nil
}

func (c *Gotd) EditChannelBanned(ctx context.Context, channel InputChannel, account InputAccount, status domain.MemberStatus) error {
	api, err := c.rpc()
	if err != nil {
		return err
	}
	u, err := api.ChannelsEditBanned(ctx, &tg.ChannelsEditBannedRequest{
		Channel:      inputChannel(channel),
		Participant:  inputPeerUser(account),
		BannedRights: statusToWire(status),
	})
	if err != nil {
		return classify(err)
	}
	c.feed(ctx, u)
	return nil
}

func (c *Gotd) EditTitle(ctx context.Context, peer Peer, title string) error {
	api, err := c.rpc()
	if err != nil {
		return err
	}
	var u tg.UpdatesClass
	if peer.BasicGroup != 0 {
		u, err = api.MessagesEditChatTitle(ctx, &tg.MessagesEditChatTitleRequest{ChatID: int64(peer.BasicGroup), Title: title})
	} else {
		u, err = api.ChannelsEditTitle(ctx, &tg.ChannelsEditTitleRequest{Channel: inputChannel(peer.Channel), Title: title})
	}
	if err != nil {
		return classify(err)
	}
	c.feed(ctx, u)
	return nil
}

func (c *Gotd) EditAbout(ctx context.Context, peer Peer, about string) error {
	api, err := c.rpc()
	if err != nil {
		return err
	}
	var ip tg.InputPeerClass
	if peer.BasicGroup != 0 {
		ip = &tg.InputPeerChat{ChatID: int64(peer.BasicGroup)}
	} else {
		ip = &tg.InputPeerChannel{ChannelID: int64(peer.Channel.ID), AccessHash: peer.Channel.AccessHash}
	}
	_, err = api.MessagesEditChatAbout(ctx, &tg.MessagesEditChatAboutRequest{Peer: ip, About: about})
	return classify(err)
}
