package edi

// ResponseAttachment es un artefacto devuelto por el PAC o la autoridad
// (acuse firmado, CDR, representación PDF) que se adjunta a la factura.
type ResponseAttachment struct {
	Name     string
	MimeType string
	Data     []byte
}

// Response es el resultado estructurado de una entrega al WS.
//
// OK significa que el PAC recibió y procesó la petición; Authoritative que la
// decisión final de la autoridad está presente. Un envío asíncrono típico
// devuelve OK=true, Authoritative=false con un Ticket para consultar después.
type Response struct {
	OK            bool
	Authoritative bool
	Accepted      bool   // válido solo cuando Authoritative
	Code          string // código del PAC/autoridad (cStat, processingCode, ...)
	Message       string
	AccessKey     string // clave asignada o confirmada por la autoridad
	Ticket        string // recibo/track id para la consulta posterior
	Raw           []byte // payload crudo, retenido para auditoría
	Attachments   []ResponseAttachment
}
