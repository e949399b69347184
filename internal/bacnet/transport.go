package bacnet

import (
	"context"
	"fmt"
	"time"

	"github.com/REQUEA/bacnet"
	"github.com/REQUEA/bacnet/bacip"
)

// ObjectIdentifier carries the BACnet object type/instance pair used by
// both the monitoring poll and the writer's set-value path.
type ObjectIdentifier struct {
	ObjectType bacnet.ObjectType
	Instance   uint32
}

// Standard BACnet property identifiers (ASHRAE 135 clause 21) used by the
// poll and write paths. bacip's example usage only shows the ReadProperty
// /WriteProperty envelope, not an exported property-identifier enum, so
// these are defined locally against the standard numbering.
const (
	PropPresentValue bacip.PropertyIdentifier = 85
	PropStatusFlags  bacip.PropertyIdentifier = 111
	PropReliability  bacip.PropertyIdentifier = 103
)

// DiscoverDevice runs a targeted Who-Is against deviceInstance and waits
// for the single matching I-Am. The result is not cached: the monitoring
// actor calls it on every poll pass and the writer on every write.
func (r *Reader) DiscoverDevice(ctx context.Context, deviceInstance uint32, timeout time.Duration) (bacnet.Device, error) {
	low := int(deviceInstance)
	high := int(deviceInstance)
	devices, err := r.client.WhoIs(bacip.WhoIs{Low: &low, High: &high}, timeout)
	if err != nil {
		return bacnet.Device{}, fmt.Errorf("who-is %d: %w", deviceInstance, err)
	}
	if len(devices) == 0 {
		return bacnet.Device{}, fmt.Errorf("no response to who-is for device %d", deviceInstance)
	}
	return devices[0], nil
}

// ReadPresentValue reads present_value only and returns the raw value.
// The optional health properties are read one at a time through
// ReadOptionalProperty.
func (r *Reader) ReadPresentValue(ctx context.Context, device bacnet.Device, obj ObjectIdentifier) (interface{}, error) {
	data, err := r.client.ReadProperty(ctx, device, bacip.ReadProperty{
		ObjectIdentifier: bacip.ObjectID{Type: obj.ObjectType, Instance: bacnet.ObjectInstance(obj.Instance)},
		PropertyID:       PropPresentValue,
	})
	if err != nil {
		return nil, fmt.Errorf("read present_value %v/%d: %w", obj.ObjectType, obj.Instance, err)
	}
	return data, nil
}

// ReadOptionalProperty reads a single optional property (statusFlags,
// reliability, etc.) without failing the whole poll cycle on error —
// callers log and continue per point, matching the Python monitor's
// best-effort optional-property collection.
func (r *Reader) ReadOptionalProperty(ctx context.Context, device bacnet.Device, obj ObjectIdentifier, property bacip.PropertyIdentifier) (interface{}, error) {
	data, err := r.client.ReadProperty(ctx, device, bacip.ReadProperty{
		ObjectIdentifier: bacip.ObjectID{Type: obj.ObjectType, Instance: bacnet.ObjectInstance(obj.Instance)},
		PropertyID:       property,
	})
	if err != nil {
		return nil, fmt.Errorf("read property %v on %v/%d: %w", property, obj.ObjectType, obj.Instance, err)
	}
	return data, nil
}

// WriteWithPriority writes present_value at the given priority (8 for
// manual operator writes, per the writer actor) then reads it back to
// return the value actually applied.
func (r *Reader) WriteWithPriority(ctx context.Context, device bacnet.Device, obj ObjectIdentifier, value float64, priority uint) (interface{}, error) {
	err := r.client.WriteProperty(ctx, device, bacip.WriteProperty{
		ObjectIdentifier: bacip.ObjectID{Type: obj.ObjectType, Instance: bacnet.ObjectInstance(obj.Instance)},
		PropertyID:       PropPresentValue,
		Priority:         priority,
		Data:             value,
	})
	if err != nil {
		return nil, fmt.Errorf("write present_value %v/%d: %w", obj.ObjectType, obj.Instance, err)
	}

	readBack, err := r.ReadPresentValue(ctx, device, obj)
	if err != nil {
		return nil, fmt.Errorf("read-back after write %v/%d: %w", obj.ObjectType, obj.Instance, err)
	}
	return readBack, nil
}
