package rally

import (
	"context"
	"fmt"
	"time"

	"github.com/pterm/pterm"
)

// HandleCompanionMessage dispatches a message from the core add-on. It is
// registered on the transport by New.
func (r *Rally) HandleCompanionMessage(ctx context.Context, msg Message, sender Sender) (reply *Message, err error) {
	defer recoverDispatch(ChannelCompanion, &reply, &err)

	if err := r.companion.Authenticate(sender); err != nil {
		r.metrics.reject(ChannelCompanion, reasonSender)
		pterm.Warning.Printf("Rally - rejected companion message: %v\n", err)
		return nil, err
	}

	switch msg.Type {
	case TypePause:
		r.pause()
		return nil, nil
	case TypeResume:
		r.resume()
		return nil, nil
	case TypeUninstall:
		if r.host.Management == nil {
			return nil, fmt.Errorf("rally: host cannot uninstall the study")
		}
		pterm.Info.Println("Rally - uninstall requested by the core add-on")
		return nil, r.host.Management.UninstallSelf(ctx, false)
	default:
		r.metrics.reject(ChannelCompanion, reasonUnknownType)
		return nil, &UnknownMessageTypeError{Channel: ChannelCompanion, Type: msg.Type}
	}
}

// HandleWebMessage dispatches a message from the Rally website. Only the
// identity broker accepts these, and only web-check and complete-signup.
// Run-state control stays with the core add-on.
//
// The website is never trusted beyond its origin: any add-on able to inject
// content scripts there can send these messages. Nothing handled here may
// leak data or reach study internals.
func (r *Rally) HandleWebMessage(ctx context.Context, msg Message, sender Sender) (reply *Message, err error) {
	defer recoverDispatch(ChannelWeb, &reply, &err)

	if r.cfg.Variant != VariantIdentityBroker {
		r.metrics.reject(ChannelWeb, reasonForbidden)
		return nil, ErrWebControlForbidden
	}
	if err := r.web.Authenticate(sender); err != nil {
		r.metrics.reject(ChannelWeb, reasonSender)
		pterm.Warning.Printf("Rally - rejected web message: %v\n", err)
		return nil, err
	}
	// The origin was just authenticated, so it parses.
	origin, _ := Origin(sender.URL)
	if !r.limiter.allow(origin, time.Now()) {
		r.metrics.reject(ChannelWeb, reasonRateLimited)
		return nil, ErrRateLimited
	}

	pterm.Debug.Printf("Rally - received web message %q from %s\n", msg.Type, sender.URL)

	switch msg.Type {
	case TypeWebCheck:
		// Presence of the add-on is already observable by anyone with the
		// management permission, so answering reveals nothing new.
		resp, err := NewMessage(TypeWebCheckResponse, WebCheckResponse{})
		if err != nil {
			return nil, err
		}
		return &resp, nil
	case TypeCompleteSignUp:
		var req CompleteSignUpRequest
		if len(msg.Data) > 0 {
			if err := msg.DecodeData(&req); err != nil {
				return nil, err
			}
		}
		done, err := r.CompleteSignUp(ctx, req.AuthToken)
		if err != nil {
			return nil, err
		}
		resp, err := NewMessage(TypeCompleteSignUp, CompleteSignUpResponse{SignUpComplete: done})
		if err != nil {
			return nil, err
		}
		return &resp, nil
	default:
		r.metrics.reject(ChannelWeb, reasonUnknownType)
		return nil, &UnknownMessageTypeError{Channel: ChannelWeb, Type: msg.Type}
	}
}

func recoverDispatch(ch Channel, reply **Message, err *error) {
	if p := recover(); p != nil {
		pterm.Error.Printf("Rally - %s handler panicked: %v\n", ch, p)
		*reply = nil
		*err = fmt.Errorf("rally: %s message handler failed", ch)
	}
}
