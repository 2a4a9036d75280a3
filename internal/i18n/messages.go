package i18n

// Message keys used by the HTTP shell.
const (
	KeyCartLoadFailed         = "cart.load_failed"
	KeyCartUnauthorized       = "cart.unauthorized"
	KeyCartUpdated            = "cart.updated"
	KeyCartUpdateFailed       = "cart.update_failed"
	KeyProductAdded           = "cart.product_added"
	KeyProductRemoved         = "cart.product_removed"
	KeyRemoveFailed           = "cart.remove_failed"
	KeyQuantityInvalid        = "cart.quantity_invalid"
	KeyLineNotFound           = "cart.line_not_found"
	KeyLineBusy               = "cart.line_busy"
	KeyCartEmpty              = "cart.empty"
	KeyCouponRequired         = "coupon.required"
	KeyCouponApplied          = "coupon.applied"
	KeyCouponRemoved          = "coupon.removed"
	KeyCouponNotFound         = "coupon.not_found"
	KeyCouponNotApplicable    = "coupon.not_applicable"
	KeyCouponFailed           = "coupon.failed"
	KeyCheckoutCreated        = "checkout.created"
	KeyCheckoutFailed         = "checkout.failed"
	KeyPaymentMethodInvalid   = "checkout.payment_method_invalid"
	KeyNotificationsLoading   = "notifications.loading"
	KeyNotificationsEmpty     = "notifications.empty"
	KeyNotificationsLogin     = "notifications.login"
	KeyNotificationsFailed    = "notifications.load_failed"
	KeyNotificationNotFound   = "notifications.not_found"
	KeyNotificationDeleteFail = "notifications.delete_failed"
	KeyUnauthorized           = "error.unauthorized"
	KeyTransient              = "error.transient"
	KeyValidation             = "error.validation"
	KeyNotFound               = "error.not_found"
	KeyMalformed              = "error.malformed"
	KeyInternal               = "error.internal"
)

// messages maps key -> [es, en].
var messages = map[string][2]string{
	KeyCartLoadFailed:         {"No se pudo cargar el carrito.", "Could not load the cart."},
	KeyCartUnauthorized:       {"Inicia sesión para ver tu carrito.", "Log in to see your cart."},
	KeyCartUpdated:            {"Carrito actualizado.", "Cart updated."},
	KeyCartUpdateFailed:       {"Error al actualizar el carrito.", "Error updating cart."},
	KeyProductAdded:           {"Producto agregado al carrito.", "Product added to cart."},
	KeyProductRemoved:         {"Producto eliminado del carrito.", "Product removed from cart."},
	KeyRemoveFailed:           {"No se pudo eliminar el producto.", "Could not remove the product."},
	KeyQuantityInvalid:        {"La cantidad debe ser mayor a 0.", "Quantity must be greater than 0."},
	KeyLineNotFound:           {"El producto ya no está en el carrito.", "The product is no longer in the cart."},
	KeyLineBusy:               {"Espera a que termine el cambio anterior.", "Wait for the previous change to finish."},
	KeyCartEmpty:              {"Tu carrito está vacío.", "Your cart is empty."},
	KeyCouponRequired:         {"Ingresa un código de cupón.", "Enter a coupon code."},
	KeyCouponApplied:          {"Cupón aplicado correctamente.", "Coupon applied."},
	KeyCouponRemoved:          {"Cupón removido.", "Coupon removed."},
	KeyCouponNotFound:         {"Cupón no válido o expirado.", "Coupon is invalid or expired."},
	KeyCouponNotApplicable:    {"Este cupón no es válido para este producto.", "This coupon does not apply to this product."},
	KeyCouponFailed:           {"Error al aplicar el cupón.", "Error applying the coupon."},
	KeyCheckoutCreated:        {"Factura generada.", "Invoice created."},
	KeyCheckoutFailed:         {"No se pudo generar la factura.", "Could not create the invoice."},
	KeyPaymentMethodInvalid:   {"Método de pago no válido.", "Invalid payment method."},
	KeyNotificationsLoading:   {"Cargando notificaciones", "Loading notifications"},
	KeyNotificationsEmpty:     {"No tienes notificaciones aún", "You have no notifications yet"},
	KeyNotificationsLogin:     {"Inicia sesión para ver tus notificaciones", "Log in to see your notifications"},
	KeyNotificationsFailed:    {"Error al cargar notificaciones.", "Error loading notifications."},
	KeyNotificationNotFound:   {"La notificación no existe.", "The notification does not exist."},
	KeyNotificationDeleteFail: {"Error al eliminar la notificación.", "Error deleting the notification."},
	KeyUnauthorized:           {"No autorizado. Por favor inicia sesión nuevamente.", "Unauthorized. Please log in again."},
	KeyTransient:              {"El servidor no responde, inténtalo de nuevo.", "The server is not responding, try again."},
	KeyValidation:             {"Solicitud no válida.", "Invalid request."},
	KeyNotFound:               {"Recurso no encontrado.", "Resource not found."},
	KeyMalformed:              {"Respuesta inesperada del servidor.", "Unexpected response from the server."},
	KeyInternal:               {"Error interno.", "Internal error."},
}
