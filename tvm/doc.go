// Package tvm implements the token vending machine credential exchange.
//
// A token vending machine (TVM) holds long-lived service credentials and
// hands out short-lived S3 access keys:
//
//	GET https://{endpoint}/v1/getcredentials
//	Authorization: Basic base64(username:password)
//
//	200 OK
//	{"AccessKeyId": "...", "SecretAccessKey": "..."}
//
// Client retries non-2xx responses and transport failures three times with a
// fixed five second delay, so the worst case wait is about fifteen seconds
// plus request time. A 2xx response without both fields fails immediately.
// Every failure is an *ExchangeError matching interfaces.ErrExchange.
//
// Provider wraps any interfaces.CredentialExchanger as an aws-sdk-go
// credentials.Provider.
package tvm
