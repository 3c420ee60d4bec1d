// Package ncnn provides Go bindings for the ncnn neural network inference
// framework via CGo.
//
// Only the surface the pitch model needs is wrapped: loading a network from
// memory, configuring threads, FP16 and Vulkan compute, and running one
// extraction over external float32 buffers.
//
// # Architecture
//
//   - [Net]: loads and holds a model (.param graph + .bin weights)
//   - [Option]: load-time settings, applied before the model is parsed
//   - [Extractor]: one inference session over a Net
//   - [Buffer]: fixed-length float32 storage in C memory for inputs
//   - [Mat]: tensor view over input data, or an owned output
//
// Usage flow:
//
//	opt := ncnn.NewOption().SetNumThreads(2)
//	net, _ := ncnn.NewNetFromMemory(paramData, binData, opt)
//	defer net.Close()
//
//	buf, _ := ncnn.NewBuffer(1024)
//	defer buf.Close()
//	in, _ := buf.Mat()
//	defer in.Close()
//
//	ex, _ := net.NewExtractor()
//	defer ex.Close()
//	ex.SetInput("in0", in)
//	out, _ := ex.Extract("out0")
//	defer out.Close()
//	data := out.FloatData()
//
// # Thread Safety
//
// Net is safe for concurrent use; multiple Extractors can run in parallel
// on the same Net. Each Extractor must be used from a single goroutine.
package ncnn

/*
#cgo pkg-config: ncnn
#include <ncnn/c_api.h>
#include <stdlib.h>
#include <string.h>

static int go_ncnn_vulkan_supported(void) {
#if NCNN_VULKAN
    return 1;
#else
    return 0;
#endif
}
*/
import "C"

import (
	"fmt"
	"runtime"
	"unsafe"
)

// Version returns the ncnn library version string.
func Version() string {
	return C.GoString(C.ncnn_version())
}

// VulkanSupported reports whether the linked ncnn was built with Vulkan
// compute.
func VulkanSupported() bool {
	return C.go_ncnn_vulkan_supported() != 0
}

// --------------------------------------------------------------------------
// Net
// --------------------------------------------------------------------------

// Net holds a loaded ncnn model. Create with [NewNetFromMemory].
type Net struct {
	net     C.ncnn_net_t
	weights unsafe.Pointer
}

// NewNetFromMemory loads a model from in-memory .param and .bin data.
//
// paramData is the text content of the .param file and binData the raw
// weights. Options must be applied before loading to take effect, so they
// are passed here rather than set afterwards.
func NewNetFromMemory(paramData, binData []byte, opts ...*Option) (*Net, error) {
	if len(paramData) == 0 {
		return nil, fmt.Errorf("ncnn: empty param data")
	}
	if len(binData) == 0 {
		return nil, fmt.Errorf("ncnn: empty bin data")
	}

	n := &Net{net: C.ncnn_net_create()}
	if n.net == nil {
		return nil, fmt.Errorf("ncnn: net_create failed")
	}

	for _, opt := range opts {
		if opt != nil {
			C.ncnn_net_set_option(n.net, opt.opt)
		}
	}

	// ncnn_net_load_param_memory expects a null-terminated C string.
	cParam := C.CString(string(paramData))
	defer C.free(unsafe.Pointer(cParam))
	if ret := C.ncnn_net_load_param_memory(n.net, cParam); ret != 0 {
		C.ncnn_net_destroy(n.net)
		return nil, fmt.Errorf("ncnn: load_param_memory: %d", ret)
	}

	// The weights are read in place; copy them to C memory that lives as
	// long as the net so Go's GC cannot move or free them.
	cBin := C.CBytes(binData)
	if ret := C.ncnn_net_load_model_memory(n.net, (*C.uchar)(cBin)); ret < 0 {
		C.free(cBin)
		C.ncnn_net_destroy(n.net)
		return nil, fmt.Errorf("ncnn: load_model_memory: %d", ret)
	}
	n.weights = cBin

	runtime.SetFinalizer(n, (*Net).Close)
	return n, nil
}

// NewExtractor creates a new inference session for this Net.
// The Extractor must be closed after use.
func (n *Net) NewExtractor() (*Extractor, error) {
	if n.net == nil {
		return nil, fmt.Errorf("ncnn: net is closed")
	}
	ex := C.ncnn_extractor_create(n.net)
	if ex == nil {
		return nil, fmt.Errorf("ncnn: extractor_create failed")
	}
	e := &Extractor{ex: ex}
	runtime.SetFinalizer(e, (*Extractor).Close)
	return e, nil
}

// Close releases the ncnn network resources.
func (n *Net) Close() error {
	if n.net != nil {
		C.ncnn_net_destroy(n.net)
		n.net = nil
		runtime.SetFinalizer(n, nil)
	}
	if n.weights != nil {
		C.free(n.weights)
		n.weights = nil
	}
	return nil
}

// --------------------------------------------------------------------------
// Option
// --------------------------------------------------------------------------

// Option configures inference behavior for a Net.
type Option struct {
	opt C.ncnn_option_t
}

// NewOption creates a new Option with default settings.
// Returns nil if allocation fails.
func NewOption() *Option {
	opt := C.ncnn_option_create()
	if opt == nil {
		return nil
	}
	o := &Option{opt: opt}
	runtime.SetFinalizer(o, (*Option).Close)
	return o
}

// SetFP16 enables or disables FP16 packing, storage and arithmetic.
func (o *Option) SetFP16(enabled bool) *Option {
	v := cbool(enabled)
	C.ncnn_option_set_use_fp16_packed(o.opt, v)
	C.ncnn_option_set_use_fp16_storage(o.opt, v)
	C.ncnn_option_set_use_fp16_arithmetic(o.opt, v)
	return o
}

// SetNumThreads sets the number of CPU threads for inference.
func (o *Option) SetNumThreads(n int) *Option {
	C.ncnn_option_set_num_threads(o.opt, C.int(n))
	return o
}

// SetVulkanCompute routes layers to the GPU through Vulkan.
func (o *Option) SetVulkanCompute(enabled bool) *Option {
	C.ncnn_option_set_use_vulkan_compute(o.opt, cbool(enabled))
	return o
}

// VulkanCompute reports whether Vulkan compute is enabled.
func (o *Option) VulkanCompute() bool {
	return C.ncnn_option_get_use_vulkan_compute(o.opt) != 0
}

// Close releases the option resources.
func (o *Option) Close() error {
	if o.opt != nil {
		C.ncnn_option_destroy(o.opt)
		o.opt = nil
		runtime.SetFinalizer(o, nil)
	}
	return nil
}

func cbool(b bool) C.int {
	if b {
		return 1
	}
	return 0
}

// --------------------------------------------------------------------------
// Extractor
// --------------------------------------------------------------------------

// Extractor runs inference on a loaded Net. Create with [Net.NewExtractor].
type Extractor struct {
	ex C.ncnn_extractor_t
}

// SetInput feeds a Mat as input to the named blob.
func (e *Extractor) SetInput(name string, mat *Mat) error {
	cName := C.CString(name)
	defer C.free(unsafe.Pointer(cName))
	if ret := C.ncnn_extractor_input(e.ex, cName, mat.mat); ret != 0 {
		return fmt.Errorf("ncnn: extractor_input %q: %d", name, ret)
	}
	return nil
}

// Extract runs inference and returns the output Mat for the named blob.
// The caller must close the returned Mat.
func (e *Extractor) Extract(name string) (*Mat, error) {
	cName := C.CString(name)
	defer C.free(unsafe.Pointer(cName))

	var m C.ncnn_mat_t
	if ret := C.ncnn_extractor_extract(e.ex, cName, &m); ret != 0 {
		return nil, fmt.Errorf("ncnn: extractor_extract %q: %d", name, ret)
	}

	mat := &Mat{mat: m}
	runtime.SetFinalizer(mat, (*Mat).Close)
	return mat, nil
}

// Close releases the extractor resources.
func (e *Extractor) Close() error {
	if e.ex != nil {
		C.ncnn_extractor_destroy(e.ex)
		e.ex = nil
		runtime.SetFinalizer(e, nil)
	}
	return nil
}

// --------------------------------------------------------------------------
// Buffer
// --------------------------------------------------------------------------

// Buffer is a fixed-length float32 array allocated in C memory. Mats created
// over it may be handed to ncnn without violating cgo pointer rules.
type Buffer struct {
	ptr  unsafe.Pointer
	data []float32
}

// NewBuffer allocates a zeroed buffer of n float32 values.
func NewBuffer(n int) (*Buffer, error) {
	if n <= 0 {
		return nil, fmt.Errorf("ncnn: invalid buffer length %d", n)
	}
	ptr := C.calloc(C.size_t(n), C.size_t(unsafe.Sizeof(float32(0))))
	if ptr == nil {
		return nil, fmt.Errorf("ncnn: buffer allocation failed")
	}
	b := &Buffer{ptr: ptr, data: unsafe.Slice((*float32)(ptr), n)}
	runtime.SetFinalizer(b, (*Buffer).Close)
	return b, nil
}

// Data returns the buffer contents. The slice is valid until Close.
func (b *Buffer) Data() []float32 {
	return b.data
}

// Mat wraps the buffer in a 1D Mat. The Mat must be closed before the
// buffer.
func (b *Buffer) Mat() (*Mat, error) {
	if b.ptr == nil {
		return nil, fmt.Errorf("ncnn: buffer is closed")
	}
	return NewMat1D(b.data)
}

// Close frees the buffer.
func (b *Buffer) Close() error {
	if b.ptr != nil {
		C.free(b.ptr)
		b.ptr = nil
		b.data = nil
		runtime.SetFinalizer(b, nil)
	}
	return nil
}

// --------------------------------------------------------------------------
// Mat
// --------------------------------------------------------------------------

// Mat is an N-dimensional tensor.
type Mat struct {
	mat C.ncnn_mat_t
}

// NewMat1D creates a 1D Mat of len(data) elements backed by data. The data
// is not copied: it must outlive the Mat. Prefer [Buffer.Mat], which keeps
// the data in C memory.
func NewMat1D(data []float32) (*Mat, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("ncnn: NewMat1D called with empty data")
	}
	mat := C.ncnn_mat_create_external_1d(C.int(len(data)), unsafe.Pointer(&data[0]), nil)
	if mat == nil {
		return nil, fmt.Errorf("ncnn: mat_create_external_1d failed")
	}
	m := &Mat{mat: mat}
	runtime.SetFinalizer(m, (*Mat).Close)
	return m, nil
}

// W returns the width (first dimension) of the Mat.
func (m *Mat) W() int { return int(C.ncnn_mat_get_w(m.mat)) }

// H returns the height (second dimension) of the Mat.
func (m *Mat) H() int { return int(C.ncnn_mat_get_h(m.mat)) }

// C returns the number of channels (third dimension) of the Mat.
func (m *Mat) C() int { return int(C.ncnn_mat_get_c(m.mat)) }

// Len returns the element count W * H * C.
func (m *Mat) Len() int {
	return max(m.W(), 1) * max(m.H(), 1) * max(m.C(), 1)
}

// FloatData copies the Mat data into a new float32 slice of Len elements.
func (m *Mat) FloatData() []float32 {
	ptr := C.ncnn_mat_get_data(m.mat)
	if ptr == nil || m.W() <= 0 {
		return nil
	}
	n := m.Len()
	out := make([]float32, n)
	C.memcpy(unsafe.Pointer(&out[0]), ptr, C.size_t(n*4))
	return out
}

// Close releases the Mat resources.
func (m *Mat) Close() error {
	if m.mat != nil {
		C.ncnn_mat_destroy(m.mat)
		m.mat = nil
		runtime.SetFinalizer(m, nil)
	}
	return nil
}
