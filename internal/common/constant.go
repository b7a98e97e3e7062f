package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// KeySize is the length in bytes of every symmetric key in the system
// (password-derived keys, channel keys, sealing keys).
const KeySize = 32
