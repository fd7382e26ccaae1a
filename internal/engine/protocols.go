package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/index"
	"github.com/starford/othala/internal/message"
	"github.com/starford/othala/internal/resolve"
)

type protocolsConfigureHandler struct{ e *Engine }

// Handle admits a protocol definition. Competing configures for the same
// protocol URI resolve exactly like record writes; only the tenant owner may
// configure protocols. Superseded definitions carry no anchor semantics and
// are pruned entirely.
func (h protocolsConfigureHandler) Handle(ctx context.Context, tenant string, env *message.Envelope, _ []byte) Reply {
	e := h.e

	d, err := message.ParseProtocolsConfigure(env)
	if err != nil {
		return reject(fmt.Errorf("%w: %v", apperr.ErrMalformed, err))
	}
	mcid, err := env.CID()
	if err != nil {
		return reject(fmt.Errorf("%w: %v", apperr.ErrMalformed, err))
	}

	if err := e.gate.Authenticate(env); err != nil {
		return reject(err)
	}
	if env.Authorization.Signer != tenant {
		return reject(fmt.Errorf("%w: only the tenant owner may configure protocols", apperr.ErrUnauthorized))
	}

	unlock := e.locks.lock(tenant + "|protocol|" + d.Protocol)
	defer unlock()

	prev, err := e.idx.NewestProtocol(tenant, d.Protocol)
	if err != nil {
		return reject(err)
	}
	var existing []resolve.Entry
	if prev != nil {
		existing = append(existing, resolve.Entry{CID: prev.CID, DateCreated: prev.DateCreated})
	}
	incoming := resolve.Entry{CID: mcid, DateCreated: d.DateCreated}
	if resolve.ResolveWrite(existing, incoming) == resolve.Conflict {
		return reject(fmt.Errorf("%w: newer or equal definition exists for protocol %s", apperr.ErrConflict, d.Protocol))
	}

	if err := e.msgs.Put(tenant, mcid, env); err != nil {
		return reject(err)
	}
	if err := e.idx.Put(index.ProjectConfigure(tenant, mcid, env.Authorization.Signer, d, true)); err != nil {
		return reject(err)
	}
	seq, err := e.events.Append(tenant, mcid)
	if err != nil {
		return reject(err)
	}

	if prev != nil {
		pruneErr := e.msgs.Delete(tenant, prev.CID)
		if pruneErr == nil {
			pruneErr = e.idx.DeleteByCID(tenant, prev.CID)
		}
		if pruneErr != nil {
			e.logger.Warn("prune failed",
				slog.String("tenant", tenant),
				slog.String("cid", prev.CID),
				slog.String("error", pruneErr.Error()))
		}
	}

	if e.notify != nil {
		e.notify(tenant, mcid, seq)
	}
	e.logger.Info("protocol configured",
		slog.String("tenant", tenant),
		slog.String("protocol", d.Protocol),
		slog.String("cid", mcid))
	return accepted("protocol configured")
}
