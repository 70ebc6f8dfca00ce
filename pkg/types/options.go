package types

import "strconv"

// NegotiatedOptions is the immutable record of option values in effect for
// a session, established once during the first exchange (RFC 2347/2348/
// 2349/7440).
type NegotiatedOptions struct {
	BlockSize       int
	TimeoutSeconds  int
	WindowSize      int
	TransferSize    int64
	HasTransferSize bool
}

// DefaultOptions returns the RFC 1350 behavior: no options in effect.
func DefaultOptions() NegotiatedOptions {
	return NegotiatedOptions{
		BlockSize:      DefaultBlockSize,
		TimeoutSeconds: DefaultTimeoutSeconds,
		WindowSize:     DefaultWindowSize,
	}
}

// Negotiate validates the options offered on an RRQ/WRQ against their RFC
// bounds and produces the final NegotiatedOptions together with the subset
// of options that should be echoed back in an OACK. tsize, when offered,
// is replaced with knownSize (the actual file size for RRQ, or echoed back
// unchanged for WRQ where the client states its own transfer size).
// defaultTimeout is the operator-configured timeout used when the client
// offers no timeout option of its own.
//
// Any numeric option (blksize, timeout, windowsize) that fails to parse as
// a decimal integer, or that parses outside its RFC range, causes
// negotiation to fail outright: the whole request is rejected with
// OptionNegotiationFailed rather than silently falling back to a default
// for that one option. Unrecognized option names are ignored, per RFC 2347.
func Negotiate(offered []Option, knownSize int64, haveKnownSize bool, defaultTimeout int) (NegotiatedOptions, []Option, *Error) {
	result := DefaultOptions()
	result.TimeoutSeconds = defaultTimeout

	var accepted []Option

	for _, opt := range offered {
		switch opt.NormalizedName() {
		case OptBlockSize:
			v, err := parseBoundedInt(opt.Value, MinBlockSize, MaxBlockSize)
			if err != nil {
				return NegotiatedOptions{}, nil, negotiationError("invalid blksize option")
			}

			result.BlockSize = v
			accepted = append(accepted, Option{Name: OptBlockSize, Value: opt.Value})
		case OptTimeout:
			v, err := parseBoundedInt(opt.Value, MinTimeoutSeconds, MaxTimeoutSeconds)
			if err != nil {
				return NegotiatedOptions{}, nil, negotiationError("invalid timeout option")
			}

			result.TimeoutSeconds = v
			accepted = append(accepted, Option{Name: OptTimeout, Value: opt.Value})
		case OptWindowSize:
			v, err := parseBoundedInt(opt.Value, MinWindowSize, MaxWindowSize)
			if err != nil {
				return NegotiatedOptions{}, nil, negotiationError("invalid windowsize option")
			}

			result.WindowSize = v
			accepted = append(accepted, Option{Name: OptWindowSize, Value: opt.Value})
		case OptTransferSize:
			v, err := strconv.ParseInt(opt.Value, 10, 64)
			if err != nil {
				return NegotiatedOptions{}, nil, negotiationError("invalid tsize option")
			}

			result.HasTransferSize = true

			if haveKnownSize {
				result.TransferSize = knownSize
			} else {
				result.TransferSize = v
			}

			accepted = append(accepted, Option{Name: OptTransferSize, Value: strconv.FormatInt(result.TransferSize, 10)})
		default:
			// unrecognized option: ignored per RFC 2347
		}
	}

	return result, accepted, nil
}

func parseBoundedInt(s string, min, max int) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}

	if n < min || n > max {
		return 0, strconv.ErrRange
	}

	return n, nil
}

func negotiationError(msg string) *Error {
	return &Error{
		Opcode:    OpCodeError,
		ErrorCode: ErrOptionNegotiationFailed,
		ErrMsg:    msg,
	}
}
