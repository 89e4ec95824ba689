package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/user/fleetpulse/internal/model"
)

const defaultPortSpec = "22/TCP"

var validate = validator.New()

type portInput struct {
	Port     int    `validate:"gte=1,lte=65535"`
	Protocol string `validate:"oneof=TCP UDP HTTP HTTPS HTTPS_SELF_SIGNED"`
}

type hostInput struct {
	IP       string      `validate:"required,ipv4"`
	Hostname string      `validate:"omitempty,hostname_rfc1123"`
	Method   string      `validate:"oneof=PING PORT"`
	Ports    []portInput `validate:"dive"`
	Timeout  float64     `validate:"gte=0"`
}

type networkInput struct {
	Name string `validate:"max=64"`
	CIDR string `validate:"required,cidrv4"`
}

// parsePortSpec parses "443", "443/https" or "53/UDP". TCP is the default protocol.
func parsePortSpec(spec string) (portInput, error) {
	portStr, proto, found := strings.Cut(strings.TrimSpace(spec), "/")
	if !found {
		proto = string(model.ProtoTCP)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return portInput{}, fmt.Errorf("invalid port %q", spec)
	}
	return portInput{Port: port, Protocol: strings.ToUpper(proto)}, nil
}

// toHost validates the input and builds the host to insert.
func (in hostInput) toHost() (*model.Host, error) {
	in.Method = strings.ToUpper(in.Method)
	if in.Method == string(model.CheckPort) && len(in.Ports) == 0 {
		p, _ := parsePortSpec(defaultPortSpec)
		in.Ports = []portInput{p}
	}
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("invalid host: %w", err)
	}

	h := &model.Host{
		IP:          in.IP,
		Hostname:    in.Hostname,
		CheckMethod: model.CheckMethod(in.Method),
	}
	if in.Method == string(model.CheckPort) {
		for _, p := range in.Ports {
			proto, _ := model.ParseProtocol(p.Protocol)
			h.Ports = append(h.Ports, model.Port{Port: p.Port, Protocol: proto, LatencyMs: model.NoReply})
		}
	}
	if in.Timeout > 0 {
		misc, err := json.Marshal(map[string]float64{"timeout": in.Timeout})
		if err != nil {
			return nil, err
		}
		h.Misc = string(misc)
	}
	return h, nil
}

func (in networkInput) toNetwork(scan bool) (*model.Network, error) {
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("invalid network: %w", err)
	}
	name := in.Name
	if name == "" {
		name = in.CIDR
	}
	return &model.Network{Name: name, CIDR: in.CIDR, Scan: scan}, nil
}

func validateIP(ip string) error {
	if err := validate.Var(ip, "required,ipv4"); err != nil {
		return fmt.Errorf("invalid IPv4 address %q", ip)
	}
	return nil
}
