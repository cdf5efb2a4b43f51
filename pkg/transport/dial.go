package transport

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/relaycache/relay-go/pkg/config"
	"github.com/relaycache/relay-go/pkg/pool"
)

// DialOptions translates the TLS and channel settings into gRPC dial options
func DialOptions(tlsCfg config.TLSConfig, channels config.ChannelConfig) ([]grpc.DialOption, error) {
	creds, err := transportCredentials(tlsCfg)
	if err != nil {
		return nil, err
	}

	opts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if channels.KeepAliveTime > 0 {
		opts = append(opts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                channels.KeepAliveTime,
			Timeout:             channels.KeepAliveTimeout,
			PermitWithoutStream: channels.KeepAlivePermitWithoutStream,
		}))
	}

	var callOpts []grpc.CallOption
	if channels.MaxSendMessageBytes > 0 {
		callOpts = append(callOpts, grpc.MaxCallSendMsgSize(channels.MaxSendMessageBytes))
	}
	if channels.MaxRecvMessageBytes > 0 {
		callOpts = append(callOpts, grpc.MaxCallRecvMsgSize(channels.MaxRecvMessageBytes))
	}
	if len(callOpts) > 0 {
		opts = append(opts, grpc.WithDefaultCallOptions(callOpts...))
	}
	return opts, nil
}

func transportCredentials(cfg config.TLSConfig) (credentials.TransportCredentials, error) {
	if cfg.Insecure {
		return insecure.NewCredentials(), nil
	}

	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         cfg.ServerName,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("transport: failed to read CA file: %w", err)
		}
		roots := x509.NewCertPool()
		if !roots.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("transport: no certificates found in %s", cfg.CAFile)
		}
		tlsConfig.RootCAs = roots
	}
	return credentials.NewTLS(tlsConfig), nil
}

// NewChannelFactory returns a pool factory creating gRPC channels to
// endpoint. Channels connect lazily; extra options are applied last.
func NewChannelFactory(endpoint string, tlsCfg config.TLSConfig, channels config.ChannelConfig, extra ...grpc.DialOption) (pool.Factory, error) {
	if endpoint == "" {
		return nil, errors.New("transport: endpoint is required")
	}
	opts, err := DialOptions(tlsCfg, channels)
	if err != nil {
		return nil, err
	}
	opts = append(opts, extra...)

	return func() (pool.Channel, error) {
		conn, err := grpc.NewClient(endpoint, opts...)
		if err != nil {
			return nil, fmt.Errorf("transport: failed to create channel to %s: %w", endpoint, err)
		}
		return conn, nil
	}, nil
}
