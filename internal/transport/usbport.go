package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"
)

// VendorID and ProductID identify the device this driver speaks to.
const (
	VendorID  = 0x0403
	ProductID = 0xcc4d
)

// usbPort is the production Port, backed by google/gousb.
type usbPort struct {
	ctx   *gousb.Context
	dev   *gousb.Device
	cfg   *gousb.Config
	intf  *gousb.Interface
	epIn  *gousb.InEndpoint
	epOut *gousb.OutEndpoint
	Addr  int
}

// OpenUSBPort discovers the device by VID/PID, claims the interface that
// exposes exactly one bulk-IN and one bulk-OUT endpoint (the endpoint
// pair is discovered, never hard-coded, since the device's descriptor
// layout isn't something this driver should assume), and returns a Port
// ready for transfers along with the device's bus address.
func OpenUSBPort() (*usbPort, int, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(VendorID, ProductID)
	if err != nil {
		ctx.Close()
		return nil, 0, fmt.Errorf("open device: %w", err)
	}
	if dev == nil {
		ctx.Close()
		return nil, 0, fmt.Errorf("no device found for vid=%#x pid=%#x", VendorID, ProductID)
	}

	if err := dev.SetAutoDetach(true); err != nil {
		dev.Close()
		ctx.Close()
		return nil, 0, fmt.Errorf("set auto detach: %w", err)
	}

	cfg, intf, epIn, epOut, err := claimBulkInterface(dev)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, 0, err
	}

	addr := int(dev.Desc.Address)
	return &usbPort{ctx: ctx, dev: dev, cfg: cfg, intf: intf, epIn: epIn, epOut: epOut, Addr: addr}, addr, nil
}

// claimBulkInterface walks the device's active configuration looking for
// an interface setting with exactly one bulk-IN and one bulk-OUT
// endpoint.
func claimBulkInterface(dev *gousb.Device) (*gousb.Config, *gousb.Interface, *gousb.InEndpoint, *gousb.OutEndpoint, error) {
	cfgNum, err := dev.ActiveConfigNum()
	if err != nil {
		cfgNum = 1
	}
	cfg, err := dev.Config(cfgNum)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("claim config %d: %w", cfgNum, err)
	}

	for _, ifDesc := range cfg.Desc.Interfaces {
		for _, alt := range ifDesc.AltSettings {
			if len(alt.Endpoints) != 2 {
				continue
			}
			var inAddr, outAddr gousb.EndpointAddress
			var inFound, outFound bool
			for _, ep := range alt.Endpoints {
				if ep.TransferType != gousb.TransferTypeBulk {
					continue
				}
				if ep.Direction == gousb.EndpointDirectionIn {
					inAddr, inFound = ep.Address, true
				} else {
					outAddr, outFound = ep.Address, true
				}
			}
			if !inFound || !outFound {
				continue
			}
			intf, err := cfg.Interface(ifDesc.Number, alt.Number)
			if err != nil {
				continue
			}
			epIn, err := intf.InEndpoint(int(inAddr) &^ 0x80)
			if err != nil {
				intf.Close()
				continue
			}
			epOut, err := intf.OutEndpoint(int(outAddr))
			if err != nil {
				intf.Close()
				continue
			}
			return cfg, intf, epIn, epOut, nil
		}
	}
	cfg.Close()
	return nil, nil, nil, nil, fmt.Errorf("no bulk in/out endpoint pair found")
}

func (p *usbPort) Write(data []byte, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return p.epOut.WriteContext(ctx, data)
}

func (p *usbPort) Read(buf []byte, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return p.epIn.ReadContext(ctx, buf)
}

func (p *usbPort) Close() error {
	if p.intf != nil {
		p.intf.Close()
	}
	if p.cfg != nil {
		p.cfg.Close()
	}
	if p.dev != nil {
		p.dev.Close()
	}
	if p.ctx != nil {
		p.ctx.Close()
	}
	return nil
}
