package chordpb

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rfratto/chordkit"
	"github.com/rfratto/chordkit/peer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Trailer keys used to carry typed errors across the wire.
const (
	trailerKind   = "chordkit-error-kind"
	trailerAddr   = "chordkit-error-addr"
	trailerID     = "chordkit-error-id"
	trailerReason = "chordkit-error-reason"
	trailerHops   = "chordkit-error-hops"
	trailerFrom   = "chordkit-error-from"
	trailerTo     = "chordkit-error-to"

	// Word of a chordkit.ErrResolution wrapping the described error. Binary
	// keys are base64 encoded by gRPC, so any word can be carried.
	trailerWord = "chordkit-error-word-bin"
)

// Error kinds.
const (
	kindEmptyRing         = "empty_ring"
	kindNotFound          = "not_found"
	kindNotJoined         = "not_joined"
	kindRegistration      = "registration"
	kindResolutionTimeout = "resolution_timeout"
	kindUnreachable       = "unreachable"
	kindStateTransition   = "state_transition"
)

// Status converts err into a gRPC status error. Typed chordkit errors are
// described in the response trailer so that FromStatus can rebuild them on
// the client. ctx must be the context of the server handler.
func Status(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	code, md := classify(err)
	if md.Len() > 0 {
		// SetTrailer only fails outside of a server handler; the status is still
		// returned in that case.
		_ = grpc.SetTrailer(ctx, md)
	}
	return status.Error(code, message(err))
}

// message returns the status message for err. The message of a
// chordkit.ErrResolution is the one of the error it wraps, as FromStatus
// wraps it again.
func message(err error) string {
	var resErr chordkit.ErrResolution
	if errors.As(err, &resErr) && resErr.Err != nil {
		return resErr.Err.Error()
	}
	return err.Error()
}

func classify(err error) (codes.Code, metadata.MD) {
	var resErr chordkit.ErrResolution
	if errors.As(err, &resErr) {
		code, md := classify(resErr.Err)
		return code, metadata.Join(md, metadata.Pairs(trailerWord, resErr.Word))
	}

	var (
		regErr         chordkit.ErrRegistration
		timeoutErr     chordkit.ErrResolutionTimeout
		unreachableErr chordkit.ErrPeerUnreachable
		transitionErr  peer.ErrStateTransition
	)

	switch {
	case errors.As(err, &regErr):
		return codes.AlreadyExists, metadata.Pairs(
			trailerKind, kindRegistration,
			trailerAddr, regErr.Addr,
			trailerID, strconv.FormatUint(regErr.ID, 10),
			trailerReason, regErr.Reason,
		)
	case errors.As(err, &timeoutErr):
		return codes.DeadlineExceeded, metadata.Pairs(
			trailerKind, kindResolutionTimeout,
			trailerID, strconv.FormatUint(timeoutErr.Key, 10),
			trailerHops, strconv.Itoa(timeoutErr.Hops),
		)
	case errors.As(err, &unreachableErr):
		return codes.Unavailable, metadata.Pairs(
			trailerKind, kindUnreachable,
			trailerAddr, unreachableErr.Addr,
			trailerReason, errString(unreachableErr.Err),
		)
	case errors.As(err, &transitionErr):
		return codes.FailedPrecondition, metadata.Pairs(
			trailerKind, kindStateTransition,
			trailerFrom, strconv.FormatUint(uint64(transitionErr.From), 10),
			trailerTo, strconv.FormatUint(uint64(transitionErr.To), 10),
		)
	case errors.Is(err, chordkit.ErrEmptyRing):
		return codes.FailedPrecondition, metadata.Pairs(trailerKind, kindEmptyRing)
	case errors.Is(err, chordkit.ErrNotJoined):
		return codes.FailedPrecondition, metadata.Pairs(trailerKind, kindNotJoined)
	case errors.Is(err, chordkit.ErrNotFound):
		return codes.NotFound, metadata.Pairs(trailerKind, kindNotFound)
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded, nil
	case errors.Is(err, context.Canceled):
		return codes.Canceled, nil
	default:
		return codes.Internal, nil
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// FromStatus converts an error returned by a call to the peer or coordinator
// at addr back into a chordkit error, using the trailer sent with the
// response. Errors without a kind that indicate a transport problem are
// reported as chordkit.ErrPeerUnreachable.
//
// Errors which were wrapped in a chordkit.ErrResolution on the remote side
// are wrapped the same way again.
func FromStatus(err error, trailer metadata.MD, addr string) error {
	if err == nil {
		return nil
	}
	err = fromStatus(err, trailer, addr)
	if words := trailer.Get(trailerWord); len(words) > 0 {
		return chordkit.ErrResolution{Word: words[0], Err: err}
	}
	return err
}

func fromStatus(err error, trailer metadata.MD, addr string) error {
	st, ok := status.FromError(err)
	if !ok {
		return chordkit.ErrPeerUnreachable{Addr: addr, Err: err}
	}

	switch get(trailer, trailerKind) {
	case kindEmptyRing:
		return &remoteError{msg: st.Message(), err: chordkit.ErrEmptyRing}
	case kindNotJoined:
		return &remoteError{msg: st.Message(), err: chordkit.ErrNotJoined}
	case kindNotFound:
		return &remoteError{msg: st.Message(), err: chordkit.ErrNotFound}
	case kindRegistration:
		id, _ := strconv.ParseUint(get(trailer, trailerID), 10, 64)
		return chordkit.ErrRegistration{
			Addr:   get(trailer, trailerAddr),
			ID:     id,
			Reason: get(trailer, trailerReason),
		}
	case kindResolutionTimeout:
		key, _ := strconv.ParseUint(get(trailer, trailerID), 10, 64)
		hops, _ := strconv.Atoi(get(trailer, trailerHops))
		return chordkit.ErrResolutionTimeout{Key: key, Hops: hops}
	case kindUnreachable:
		return chordkit.ErrPeerUnreachable{
			Addr: get(trailer, trailerAddr),
			Err:  errors.New(get(trailer, trailerReason)),
		}
	case kindStateTransition:
		from, _ := strconv.ParseUint(get(trailer, trailerFrom), 10, 32)
		to, _ := strconv.ParseUint(get(trailer, trailerTo), 10, 32)
		return peer.ErrStateTransition{From: peer.State(from), To: peer.State(to)}
	}

	switch st.Code() {
	case codes.Unavailable:
		return chordkit.ErrPeerUnreachable{Addr: addr, Err: errors.New(st.Message())}
	case codes.DeadlineExceeded:
		return chordkit.ErrPeerUnreachable{
			Addr: addr,
			Err:  fmt.Errorf("%s: %w", st.Message(), context.DeadlineExceeded),
		}
	case codes.Canceled:
		return fmt.Errorf("%s: %w", st.Message(), context.Canceled)
	default:
		return err
	}
}

func get(md metadata.MD, key string) string {
	vv := md.Get(key)
	if len(vv) == 0 {
		return ""
	}
	return vv[0]
}

// remoteError keeps the message produced by the remote side while matching
// the sentinel it was built from.
type remoteError struct {
	msg string
	err error
}

func (e *remoteError) Error() string { return e.msg }
func (e *remoteError) Unwrap() error { return e.err }
